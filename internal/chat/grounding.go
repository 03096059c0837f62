package chat

// SystemInstruction builds the grounding instruction for a conversation with
// a parsed bill. The serialized record is embedded in full between markers so
// the model answers bill questions strictly from that data; anything else is
// ordinary chit-chat. The model alone decides whether a question is about the
// bill, so the instruction is the whole grounding mechanism.
func SystemInstruction(billJSON string) string {
	return "You are an AI Bill Analyst. Your main goal is to answer questions about the provided JSON bill data, " +
		"and also engage in friendly chit-chat. When asked about the bill, use *only* the data below. " +
		"If a value the user asks about is not present in the data, say that it is not available on this bill " +
		"instead of guessing or making one up. " +
		"If the question is conversational, respond normally." +
		"\n\n--- BILL DATA START ---\n" + billJSON + "\n--- BILL DATA END ---\n"
}

// SystemInstructionNoBill is the instruction used before any bill has been
// parsed. Bill questions get a deterministic "no bill is loaded" answer from
// the model; chit-chat works as usual.
func SystemInstructionNoBill() string {
	return "You are an AI Bill Analyst. No bill has been uploaded yet, so there is no bill data available. " +
		"If the user asks anything about a bill, invoice, amount, item or seller, tell them that no bill is " +
		"loaded and that they should upload a bill image first. Never invent bill data. " +
		"For ordinary conversational questions, respond normally and in a friendly tone."
}
