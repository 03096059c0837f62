package extraction

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("NewGemini", func() {
	When("no API key is provided", func() {
		It("returns an error", func() {
			_, err := NewGemini("", "")
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("api key is required"))
		})
	})

	When("an API key is provided", func() {
		var g *Gemini

		BeforeEach(func() {
			var err error
			g, err = NewGemini("test-key", "")
			Expect(err).NotTo(HaveOccurred())
		})

		AfterEach(func() {
			g.Close()
		})

		It("constrains responses to JSON", func() {
			Expect(g.model.ResponseMIMEType).To(Equal("application/json"))
		})

		It("attaches the bill response schema to the model", func() {
			Expect(g.model.ResponseSchema).NotTo(BeNil())
			Expect(g.model.ResponseSchema.Required).To(ConsistOf("invoiceNumber", "invoiceDate", "seller", "grandTotal", "items"))
		})
	})
})
