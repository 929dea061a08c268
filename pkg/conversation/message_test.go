package conversation_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatstream/pkg/conversation"
)

var _ = Describe("Phase", func() {
	DescribeTable("String",
		func(p conversation.Phase, want string) {
			Expect(p.String()).To(Equal(want))
		},
		Entry("idle", conversation.PhaseIdle, "idle"),
		Entry("sending", conversation.PhaseSending, "sending"),
		Entry("streaming", conversation.PhaseStreaming, "streaming"),
		Entry("error", conversation.PhaseError, "error"),
		Entry("out of range", conversation.Phase(42), "unknown"),
	)
})

var _ = Describe("Snapshot", func() {
	It("reports busy only while a request is in flight", func() {
		Expect(conversation.Snapshot{Phase: conversation.PhaseIdle}.Busy()).To(BeFalse())
		Expect(conversation.Snapshot{Phase: conversation.PhaseSending}.Busy()).To(BeTrue())
		Expect(conversation.Snapshot{Phase: conversation.PhaseStreaming}.Busy()).To(BeTrue())
		Expect(conversation.Snapshot{Phase: conversation.PhaseError}.Busy()).To(BeFalse())
	})
})

var _ = Describe("CounterSource", func() {
	It("counts up from one with the prefix", func() {
		next := conversation.CounterSource("msg-")
		Expect(next()).To(Equal("msg-1"))
		Expect(next()).To(Equal("msg-2"))
	})
})
