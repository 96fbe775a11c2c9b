package mech_test

import (
	"github.com/mplewis/kvmech/mech"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("WebStore", func() {
	var host *mech.MemHost
	var w *mech.WebStore
	BeforeEach(func() {
		host = mech.NewMemHost(mech.MemHostArgs{})
		w = mech.NewWebStore(host)
	})

	It("probes availability with a sentinel write", func() {
		Expect(w.Available()).To(BeTrue())
		count, err := w.Count()
		Expect(err).NotTo(HaveOccurred())
		Expect(count).To(Equal(0)) // the sentinel leaves nothing behind

		host.RefuseWrites(true)
		Expect(w.Available()).To(BeFalse())
	})

	It("round-trips values", func() {
		Expect(w.Set("greeting", "hello")).To(Succeed())

		val, found, err := w.Get("greeting")
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeTrue())
		Expect(val).To(Equal("hello"))

		Expect(w.Remove("greeting")).To(Succeed())
		_, found, err = w.Get("greeting")
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeFalse())
	})

	It("signals StorageDisabled when an empty host rejects a write", func() {
		host.RefuseWrites(true)
		err := w.Set("k", "v")
		Expect(err).To(HaveOccurred())
		Expect(mech.CodeOf(err)).To(Equal(mech.StorageDisabled))
	})

	It("signals QuotaExceeded when a non-empty host rejects a write", func() {
		Expect(w.Set("seed", "data")).To(Succeed())
		host.RefuseWrites(true)

		err := w.Set("k", "v")
		Expect(err).To(HaveOccurred())
		Expect(mech.CodeOf(err)).To(Equal(mech.QuotaExceeded))
	})

	It("signals QuotaExceeded when the host runs out of room", func() {
		host = mech.NewMemHost(mech.MemHostArgs{Quota: 8})
		w = mech.NewWebStore(host)

		Expect(w.Set("a", "12345678")).To(Succeed())
		err := w.Set("b", "x")
		Expect(err).To(HaveOccurred())
		Expect(mech.CodeOf(err)).To(Equal(mech.QuotaExceeded))
	})

	It("raises InvalidValue for a stored non-string", func() {
		Expect(host.SetItem("binary", []byte{0xff, 0xfe, 0xfd})).To(Succeed())

		_, found, err := w.Get("binary")
		Expect(found).To(BeTrue())
		Expect(mech.CodeOf(err)).To(Equal(mech.InvalidValue))
	})

	It("aborts value iteration at a non-string, but not key iteration", func() {
		Expect(w.Set("a", "ok")).To(Succeed())
		Expect(host.SetItem("b", []byte{0xff, 0xfe})).To(Succeed())
		Expect(w.Set("c", "also ok")).To(Succeed())

		keys, err := collect(w.Iterate, true)
		Expect(err).NotTo(HaveOccurred())
		Expect(keys).To(Equal([]string{"a", "b", "c"}))

		vals, err := collect(w.Iterate, false)
		Expect(mech.CodeOf(err)).To(Equal(mech.InvalidValue))
		Expect(vals).To(Equal([]string{"ok"})) // walk stopped at the bad entry
	})

	It("counts what iteration sees, and clears to zero", func() {
		Expect(w.Set("a", "1")).To(Succeed())
		Expect(w.Set("b", "2")).To(Succeed())

		count, err := w.Count()
		Expect(err).NotTo(HaveOccurred())
		keys, err := collect(w.Iterate, true)
		Expect(err).NotTo(HaveOccurred())
		Expect(keys).To(HaveLen(count))

		Expect(w.Clear()).To(Succeed())
		count, err = w.Count()
		Expect(err).NotTo(HaveOccurred())
		Expect(count).To(Equal(0))
	})

	It("skips keys that vanish mid-walk", func() {
		Expect(w.Set("a", "1")).To(Succeed())
		Expect(w.Set("b", "2")).To(Succeed())
		Expect(w.Set("c", "3")).To(Succeed())

		var vals []string
		err := w.Iterate(false, func(val string) bool {
			vals = append(vals, val)
			host.RemoveItem("b") // mutate behind the walk's back
			return true
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(vals).To(ContainElement("1"))
		Expect(vals).NotTo(ContainElement("2"))
	})
})
