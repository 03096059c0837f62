package bill

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"bill-analyst/internal/chat"
	"bill-analyst/internal/extraction"
)

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		extractor   *mockExtractor
		responder   *mockResponder
		service     *Service
		server      *Server
		auth        BasicAuth
		ghttpServer *ghttp.Server
	)

	setupServer := func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
		ghttpServer = ghttp.NewServer()
		ghttpServer.AppendHandlers(server.ServeHTTP)
	}

	BeforeEach(func() {
		db = newMockDB()
		extractor = newMockExtractor()
		responder = &mockResponder{}
		auth = BasicAuth{}
		service = NewServiceWithDeps(db, extractor, responder, &mockIDGenerator{id: "fresh-session"}, &mockTimeSource{})
		server = NewServerWithMux(service, auth, http.NewServeMux())
		setupServer()
	})

	AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
	})

	// uploadRequest builds a multipart bill upload bound to a session cookie
	uploadRequest := func(sessionID string, contents []byte) *http.Request {
		var body bytes.Buffer
		writer := multipart.NewWriter(&body)
		part, err := writer.CreateFormFile("file", "bill.jpg")
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write(contents)
		Expect(err).NotTo(HaveOccurred())
		Expect(writer.Close()).To(Succeed())

		req, err := http.NewRequest("POST", ghttpServer.URL()+"/api/bill", &body)
		Expect(err).NotTo(HaveOccurred())
		req.Header.Set("Content-Type", writer.FormDataContentType())
		if sessionID != "" {
			req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: sessionID})
		}
		return req
	}

	jsonRequest := func(method, path, sessionID string, payload interface{}) *http.Request {
		var body io.Reader
		if payload != nil {
			data, err := json.Marshal(payload)
			Expect(err).NotTo(HaveOccurred())
			body = bytes.NewReader(data)
		}
		req, err := http.NewRequest(method, ghttpServer.URL()+path, body)
		Expect(err).NotTo(HaveOccurred())
		if sessionID != "" {
			req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: sessionID})
		}
		return req
	}

	Describe("handleUploadBill", func() {
		When("upload succeeds", func() {
			var resp *http.Response

			JustBeforeEach(func() {
				var err error
				resp, err = http.DefaultClient.Do(uploadRequest("session-123", []byte("fake image data")))
				Expect(err).NotTo(HaveOccurred())
				DeferCleanup(resp.Body.Close)
			})

			It("should return status Created", func() {
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			})

			It("should return the extracted record and extraction flag", func() {
				var body struct {
					Record      *extraction.BillRecord `json:"record"`
					Reextracted bool                   `json:"reextracted"`
				}
				Expect(json.NewDecoder(resp.Body).Decode(&body)).To(Succeed())
				Expect(body.Record.InvoiceNumber).To(Equal("INV-2024-001"))
				Expect(body.Reextracted).To(BeTrue())
			})

			It("should set Content-Type to application/json", func() {
				Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))
			})
		})

		When("no session cookie is present", func() {
			It("issues a session cookie", func() {
				resp, err := http.DefaultClient.Do(uploadRequest("", []byte("fake image data")))
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()

				var found bool
				for _, cookie := range resp.Cookies() {
					if cookie.Name == sessionCookieName {
						found = true
						Expect(cookie.Value).To(Equal("fresh-session"))
					}
				}
				Expect(found).To(BeTrue())
			})
		})

		When("the model returns unusable output", func() {
			BeforeEach(func() {
				extractor.err = fmt.Errorf("%w: not json", extraction.ErrMalformedResponse)
			})

			It("should return status Unprocessable Entity", func() {
				resp, err := http.DefaultClient.Do(uploadRequest("session-123", []byte("fake image data")))
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))
			})
		})

		When("the extraction service is down", func() {
			BeforeEach(func() {
				extractor.err = fmt.Errorf("%w: connect refused", extraction.ErrServiceUnavailable)
			})

			It("should return status Bad Gateway", func() {
				resp, err := http.DefaultClient.Do(uploadRequest("session-123", []byte("fake image data")))
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))
			})
		})

		When("no file is attached", func() {
			It("should return status Bad Request", func() {
				var body bytes.Buffer
				writer := multipart.NewWriter(&body)
				Expect(writer.Close()).To(Succeed())

				req, err := http.NewRequest("POST", ghttpServer.URL()+"/api/bill", &body)
				Expect(err).NotTo(HaveOccurred())
				req.Header.Set("Content-Type", writer.FormDataContentType())

				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})
	})

	Describe("handleGetBill", func() {
		When("no bill is loaded", func() {
			It("should return status Not Found", func() {
				resp, err := http.DefaultClient.Do(jsonRequest("GET", "/api/bill", "session-123", nil))
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			})
		})

		When("a bill is loaded", func() {
			BeforeEach(func() {
				_, _, err := service.UploadBill("session-123", []byte("fake image data"), "image/jpeg")
				Expect(err).NotTo(HaveOccurred())
			})

			It("should return the current record", func() {
				resp, err := http.DefaultClient.Do(jsonRequest("GET", "/api/bill", "session-123", nil))
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var record extraction.BillRecord
				Expect(json.NewDecoder(resp.Body).Decode(&record)).To(Succeed())
				Expect(record.GrandTotal).To(Equal(150.75))
			})
		})
	})

	Describe("handleExportBill", func() {
		When("a bill is loaded", func() {
			BeforeEach(func() {
				_, _, err := service.UploadBill("session-123", []byte("fake image data"), "image/jpeg")
				Expect(err).NotTo(HaveOccurred())
			})

			It("should offer the record as a JSON download", func() {
				resp, err := http.DefaultClient.Do(jsonRequest("GET", "/api/bill/export", "session-123", nil))
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()

				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))
				Expect(resp.Header.Get("Content-Disposition")).To(Equal(`attachment; filename="INV-2024-001_bill_data.json"`))
			})

			It("should serve JSON that parses back to the same record", func() {
				resp, err := http.DefaultClient.Do(jsonRequest("GET", "/api/bill/export", "session-123", nil))
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()

				var record extraction.BillRecord
				Expect(json.NewDecoder(resp.Body).Decode(&record)).To(Succeed())
				Expect(record).To(Equal(*extractor.record))
			})
		})

		When("no bill is loaded", func() {
			It("should return status Not Found", func() {
				resp, err := http.DefaultClient.Do(jsonRequest("GET", "/api/bill/export", "session-123", nil))
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			})
		})
	})

	Describe("handleAsk", func() {
		BeforeEach(func() {
			_, _, err := service.UploadBill("session-123", []byte("fake image data"), "image/jpeg")
			Expect(err).NotTo(HaveOccurred())
		})

		When("the question is answerable from the bill", func() {
			It("should return the grounded reply", func() {
				resp, err := http.DefaultClient.Do(jsonRequest("POST", "/api/chat", "session-123", map[string]string{
					"message": "What is the grand total?",
				}))
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var body map[string]string
				Expect(json.NewDecoder(resp.Body).Decode(&body)).To(Succeed())
				Expect(body["reply"]).To(ContainSubstring("150.75"))
			})
		})

		When("the message is empty", func() {
			It("should return status Bad Request", func() {
				resp, err := http.DefaultClient.Do(jsonRequest("POST", "/api/chat", "session-123", map[string]string{
					"message": "   ",
				}))
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})

		When("the request body is not JSON", func() {
			It("should return status Bad Request", func() {
				req, err := http.NewRequest("POST", ghttpServer.URL()+"/api/chat", strings.NewReader("not json"))
				Expect(err).NotTo(HaveOccurred())
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})

		When("the chat service is down", func() {
			BeforeEach(func() {
				responder.err = fmt.Errorf("%w: timeout", chat.ErrServiceUnavailable)
			})

			It("should return status Bad Gateway", func() {
				resp, err := http.DefaultClient.Do(jsonRequest("POST", "/api/chat", "session-123", map[string]string{
					"message": "What is the grand total?",
				}))
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))
			})
		})
	})

	Describe("handleGetHistory", func() {
		BeforeEach(func() {
			_, _, err := service.UploadBill("session-123", []byte("fake image data"), "image/jpeg")
			Expect(err).NotTo(HaveOccurred())
		})

		It("should return the transcript in order", func() {
			resp, err := http.DefaultClient.Do(jsonRequest("GET", "/api/chat", "session-123", nil))
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var body struct {
				History []chat.Turn `json:"history"`
			}
			Expect(json.NewDecoder(resp.Body).Decode(&body)).To(Succeed())
			Expect(body.History).To(HaveLen(1))
			Expect(body.History[0].Role).To(Equal(chat.RoleAssistant))
		})
	})

	Describe("handleResetSession", func() {
		BeforeEach(func() {
			_, _, err := service.UploadBill("session-123", []byte("fake image data"), "image/jpeg")
			Expect(err).NotTo(HaveOccurred())
		})

		It("should return status No Content and drop the session", func() {
			resp, err := http.DefaultClient.Do(jsonRequest("DELETE", "/api/session", "session-123", nil))
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(db.sessions).NotTo(HaveKey("session-123"))
		})
	})

	Describe("basic auth", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "admin", Password: "secret"}
			server = NewServerWithMux(service, auth, http.NewServeMux())
			setupServer()
		})

		When("credentials are missing", func() {
			It("should return status Unauthorized", func() {
				resp, err := http.DefaultClient.Do(jsonRequest("GET", "/api/bill", "session-123", nil))
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
				Expect(resp.Header.Get("WWW-Authenticate")).To(ContainSubstring("Bill Analyst"))
			})
		})

		When("credentials are valid", func() {
			It("should allow the request", func() {
				req := jsonRequest("GET", "/api/chat", "session-123", nil)
				req.SetBasicAuth("admin", "secret")
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
			})
		})
	})
})
