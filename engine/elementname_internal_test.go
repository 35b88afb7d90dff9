package engine

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ElementName", func() {
	It("parses dotted segments", func() {
		name := ParseName("Bank.Tellers.Window")
		Expect(name.Tokens).To(HaveLen(3))
		Expect(name.Tokens[0].ElemName).To(Equal("Bank"))
		Expect(name.Tokens[0].Index).To(Equal(-1))
		Expect(name.Tokens[2].ElemName).To(Equal("Window"))
	})

	It("parses a series index", func() {
		name := ParseName("Bank.Door.Customer[12]")
		Expect(name.Tokens[2].ElemName).To(Equal("Customer"))
		Expect(name.Tokens[2].Index).To(Equal(12))
	})

	It("rejects an empty ID", func() {
		Expect(func() { NameMustBeValid("") }).To(Panic())
	})

	It("rejects underscores and dashes", func() {
		Expect(func() { NameMustBeValid("Teller_0") }).To(Panic())
		Expect(func() { NameMustBeValid("Teller-0") }).To(Panic())
	})

	It("rejects uncapitalized segments", func() {
		Expect(func() { NameMustBeValid("bank.Teller") }).To(Panic())
	})

	It("rejects unmatched index brackets", func() {
		Expect(func() { NameMustBeValid("Teller[0") }).To(Panic())
		Expect(func() { NameMustBeValid("Teller0]") }).To(Panic())
	})

	It("rejects empty segments", func() {
		Expect(func() { NameMustBeValid("Bank..Teller") }).To(Panic())
	})

	It("builds child IDs from a parent", func() {
		Expect(BuildName("", "Bank")).To(Equal("Bank"))
		Expect(BuildName("Bank", "Teller")).To(Equal("Bank.Teller"))
	})

	It("builds indexed IDs for series members", func() {
		Expect(BuildNameWithIndex("", "Customer", 0)).To(Equal("Customer[0]"))
		Expect(BuildNameWithIndex("Bank.Door", "Customer", 3)).
			To(Equal("Bank.Door.Customer[3]"))
	})
})
