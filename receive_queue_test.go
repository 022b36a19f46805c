package rlnc

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Receive Queue", func() {
	var (
		queue    *receiveQueue
		dequeued chan struct{}
	)

	BeforeEach(func() {
		dequeued = make(chan struct{}, 100)
		queue = newReceiveQueue(2, func() { dequeued <- struct{}{} })
	})

	It("receives datagrams in order", func() {
		queue.Add([]byte("foo"))
		queue.Add([]byte("bar"))
		d, err := queue.Receive(context.Background())
		Expect(err).ToNot(HaveOccurred())
		Expect(d).To(Equal([]byte("foo")))
		Expect(dequeued).To(HaveLen(1))
		d, err = queue.Receive(context.Background())
		Expect(err).ToNot(HaveOccurred())
		Expect(d).To(Equal([]byte("bar")))
	})

	It("reports when it's full", func() {
		Expect(queue.HasRoom()).To(BeTrue())
		queue.Add([]byte("foo"))
		queue.Add([]byte("bar"))
		Expect(queue.HasRoom()).To(BeFalse())
		_, err := queue.Receive(context.Background())
		Expect(err).ToNot(HaveOccurred())
		Expect(queue.HasRoom()).To(BeTrue())
	})

	It("blocks until a datagram is received", func() {
		dataChan := make(chan []byte, 1)
		go func() {
			defer GinkgoRecover()
			d, err := queue.Receive(context.Background())
			Expect(err).ToNot(HaveOccurred())
			dataChan <- d
		}()
		Consistently(dataChan, 50*time.Millisecond).ShouldNot(Receive())
		queue.Add([]byte("foobar"))
		Eventually(dataChan).Should(Receive(Equal([]byte("foobar"))))
	})

	It("respects the context", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := queue.Receive(ctx)
		Expect(err).To(MatchError(context.Canceled))
	})

	It("returns queued datagrams before the close error", func() {
		testErr := errors.New("test error")
		queue.Add([]byte("foo"))
		queue.CloseWithError(testErr)
		d, err := queue.Receive(context.Background())
		Expect(err).ToNot(HaveOccurred())
		Expect(d).To(Equal([]byte("foo")))
		_, err = queue.Receive(context.Background())
		Expect(err).To(MatchError(testErr))
	})
})
