package sse

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ParseLine", func() {
	Context("with lines that carry no event", func() {
		DescribeTable("returns nil, nil",
			func(line string) {
				ev, err := ParseLine(line)
				Expect(err).NotTo(HaveOccurred())
				Expect(ev).To(BeNil())
			},
			Entry("blank line", ""),
			Entry("comment", ": keep-alive"),
			Entry("event field", "event: message"),
			Entry("id field", "id: 42"),
			Entry("data without the space", `data:{"type":"chunk","text":"x"}`),
			Entry("leading whitespace", ` data: {"type":"chunk","text":"x"}`),
		)
	})

	Context("with well-formed events", func() {
		It("decodes a chunk", func() {
			ev, err := ParseLine(`data: {"type":"chunk","text":"Let me "}`)
			Expect(err).NotTo(HaveOccurred())
			Expect(ev).To(Equal(Chunk{Text: "Let me "}))
			Expect(ev.Kind()).To(Equal(KindChunk))
		})

		It("decodes escapes in chunk text", func() {
			ev, err := ParseLine(`data: {"type":"chunk","text":"line\nnext \"q\" ⛰"}`)
			Expect(err).NotTo(HaveOccurred())
			Expect(ev).To(Equal(Chunk{Text: "line\nnext \"q\" ⛰"}))
		})

		It("decodes an empty chunk", func() {
			ev, err := ParseLine(`data: {"type":"chunk","text":""}`)
			Expect(err).NotTo(HaveOccurred())
			Expect(ev).To(Equal(Chunk{}))
		})

		It("decodes done", func() {
			ev, err := ParseLine(`data: {"type":"done","session_id":"abc123"}`)
			Expect(err).NotTo(HaveOccurred())
			Expect(ev).To(Equal(Done{SessionID: "abc123"}))
		})

		It("decodes done with a null session id", func() {
			ev, err := ParseLine(`data: {"type":"done","session_id":null}`)
			Expect(err).NotTo(HaveOccurred())
			Expect(ev).To(Equal(Done{}))
		})

		It("decodes done without a session id", func() {
			ev, err := ParseLine(`data: {"type":"done"}`)
			Expect(err).NotTo(HaveOccurred())
			Expect(ev).To(Equal(Done{}))
		})

		It("decodes error", func() {
			ev, err := ParseLine(`data: {"type":"error","message":"agent crashed"}`)
			Expect(err).NotTo(HaveOccurred())
			Expect(ev).To(Equal(Error{Message: "agent crashed"}))
		})

		It("decodes error without a message", func() {
			ev, err := ParseLine(`data: {"type":"error"}`)
			Expect(err).NotTo(HaveOccurred())
			Expect(ev).To(Equal(Error{}))
		})

		It("keeps unknown types with their payload", func() {
			ev, err := ParseLine(`data: {"type":"tool_call","name":"get_order"}`)
			Expect(err).NotTo(HaveOccurred())
			Expect(ev).To(Equal(Unknown{Type: "tool_call", Payload: `{"type":"tool_call","name":"get_order"}`}))
			Expect(ev.Kind()).To(Equal(Kind("tool_call")))
		})

		It("ignores extra fields", func() {
			ev, err := ParseLine(`data: {"type":"chunk","text":"x","index":3}`)
			Expect(err).NotTo(HaveOccurred())
			Expect(ev).To(Equal(Chunk{Text: "x"}))
		})

		It("tolerates trailing whitespace", func() {
			ev, err := ParseLine("data: {\"type\":\"chunk\",\"text\":\"x\"}  ")
			Expect(err).NotTo(HaveOccurred())
			Expect(ev).To(Equal(Chunk{Text: "x"}))
		})
	})

	Context("with malformed payloads", func() {
		DescribeTable("returns a MalformedEventError",
			func(line string) {
				ev, err := ParseLine(line)
				Expect(ev).To(BeNil())
				Expect(err).To(MatchError(ErrMalformedEvent))

				var malformed *MalformedEventError
				Expect(err).To(BeAssignableToTypeOf(malformed))
				Expect(err.(*MalformedEventError).Line).To(Equal(line))
			},
			Entry("not JSON", "data: not json"),
			Entry("truncated JSON", `data: {"type":"chunk","text":"hi`),
			Entry("empty payload", "data: "),
			Entry("array", `data: ["chunk"]`),
			Entry("string", `data: "chunk"`),
			Entry("missing type", `data: {"text":"hi"}`),
			Entry("numeric type", `data: {"type":1,"text":"hi"}`),
			Entry("chunk without text", `data: {"type":"chunk"}`),
			Entry("chunk with numeric text", `data: {"type":"chunk","text":5}`),
			Entry("done with numeric session id", `data: {"type":"done","session_id":7}`),
			Entry("done with object session id", `data: {"type":"done","session_id":{"id":"s1"}}`),
		)

		It("describes the reason", func() {
			_, err := ParseLine(`data: {"type":"chunk"}`)
			Expect(err.Error()).To(ContainSubstring("text"))
		})
	})
})
