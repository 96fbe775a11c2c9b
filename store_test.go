package kvmech_test

import (
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/mplewis/kvmech"
	"github.com/mplewis/kvmech/mech"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("store", func() {
	BeforeEach(resetStore)

	It("behaves as expected", func() {
		// lock two keys for use
		sid, err := s.Lock("foo", "bar")
		Expect(err).NotTo(HaveOccurred())
		defer s.Unlock(sid)

		// get not found
		_, found, err := s.Get("foo")
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(Equal(false))

		// set, then get found
		err = s.Set(sid, "foo", "baz")
		Expect(err).NotTo(HaveOccurred())

		data, found, err := s.Get("foo")
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(Equal(true))
		Expect(data).To(Equal("baz"))

		// set, then get found for a different key
		err = s.Set(sid, "bar", "qux")
		Expect(err).NotTo(HaveOccurred())

		data, found, err = s.Get("bar")
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(Equal(true))
		Expect(data).To(Equal("qux"))

		// the original key still holds its value
		data, found, err = s.Get("foo")
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(Equal(true))
		Expect(data).To(Equal("baz"))

		// delete, then get not found
		err = s.Del(sid, "foo")
		Expect(err).NotTo(HaveOccurred())

		_, found, err = s.Get("foo")
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(Equal(false))
	})

	It("refuses writes outside the session", func() {
		sid, err := s.Lock("held")
		Expect(err).NotTo(HaveOccurred())
		defer s.Unlock(sid)

		err = s.Set(sid, "unheld", "nope")
		Expect(err).To(MatchError(fmt.Sprintf("session %s does not include key unheld", sid)))

		err = s.Del(sid, "unheld")
		Expect(err).To(MatchError(fmt.Sprintf("session %s does not include key unheld", sid)))

		err = s.Set("bogus-session", "held", "nope")
		Expect(err).To(MatchError("session bogus-session does not include key held"))
	})

	It("refuses writes after unlock", func() {
		sid, err := s.Lock("gone")
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Unlock(sid)).To(Succeed())

		err = s.Set(sid, "gone", "nope")
		Expect(err).To(MatchError(fmt.Sprintf("session %s does not include key gone", sid)))
	})

	It("times out locking a held key", func() {
		quick, err := kvmech.New(kvmech.Args{
			Mechanism:   backend,
			LockTimeout: 20 * time.Millisecond,
		})
		Expect(err).NotTo(HaveOccurred())

		sid, err := quick.Lock("contested")
		Expect(err).NotTo(HaveOccurred())
		defer quick.Unlock(sid)

		_, err = quick.Lock("contested")
		Expect(err).To(MatchError("timed out locking key: contested"))
	})

	It("lists keys by prefix", func() {
		sid, err := s.Lock("post:1", "post:2", "author:1")
		Expect(err).NotTo(HaveOccurred())
		defer s.Unlock(sid)

		Expect(s.Set(sid, "post:1", "a")).To(Succeed())
		Expect(s.Set(sid, "post:2", "b")).To(Succeed())
		Expect(s.Set(sid, "author:1", "c")).To(Succeed())

		keys, err := s.Keys("post:")
		Expect(err).NotTo(HaveOccurred())
		Expect(keys).To(ConsistOf("post:1", "post:2"))

		keys, err = s.Keys("")
		Expect(err).NotTo(HaveOccurred())
		Expect(keys).To(ConsistOf("post:1", "post:2", "author:1"))
	})

	It("does not list keys from other namespaces", func() {
		other, err := kvmech.New(kvmech.Args{Mechanism: backend, Namespace: "elsewhere"})
		Expect(err).NotTo(HaveOccurred())

		sid, err := other.Lock("hidden")
		Expect(err).NotTo(HaveOccurred())
		defer other.Unlock(sid)
		Expect(other.Set(sid, "hidden", "x")).To(Succeed())

		keys, err := s.Keys("")
		Expect(err).NotTo(HaveOccurred())
		Expect(keys).To(BeEmpty())
	})

	It("requires an iterable mechanism for Keys", func() {
		plain, err := kvmech.New(kvmech.Args{Mechanism: bareMechanism{backend}})
		Expect(err).NotTo(HaveOccurred())
		_, err = plain.Keys("")
		Expect(err).To(HaveOccurred())
	})

	It("passes the atomic stress test", func() {
		key := "addsub"
		total := 100

		// set initial value to 0
		sid, err := s.Lock(key)
		if err != nil {
			log.Panic(err)
		}
		err = s.Set(sid, key, "0")
		if err != nil {
			log.Panic(err)
		}
		s.Unlock(sid)

		// odd workers add 1, even workers subtract 1
		worker := func(delta int) {
			sid, err := s.Lock(key)
			if err != nil {
				log.Panic(err)
			}
			defer s.Unlock(sid)

			val, found, err := s.Get(key)
			if err != nil {
				log.Panic(err)
			}
			if !found {
				log.Panicf("%s not found", key)
			}
			n, err := strconv.Atoi(val)
			if err != nil {
				log.Panic(err)
			}
			err = s.Set(sid, key, fmt.Sprintf("%d", n+delta))
			if err != nil {
				log.Panic(err)
			}
		}

		wg := sync.WaitGroup{}
		for i := 0; i < total; i++ {
			i := i
			wg.Add(1)
			go func() {
				delta := 1
				if i%2 == 0 {
					delta = -1
				}
				worker(delta)
				wg.Done()
			}()
		}
		wg.Wait()

		val, found, err := s.Get(key)
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(Equal(true))
		Expect(val).To(Equal("0"))
	})
})

// bareMechanism hides the iteration methods of its backend.
type bareMechanism struct {
	mech.Mechanism
}
