package programmer_test

import (
	"bytes"
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/moffa90/go-ch341prog/eeprom"
	"github.com/moffa90/go-ch341prog/i2c"
	"github.com/moffa90/go-ch341prog/memory"
	"github.com/moffa90/go-ch341prog/programmer"
	"github.com/moffa90/go-ch341prog/protocol"
	"github.com/moffa90/go-ch341prog/transport"
	"github.com/moffa90/go-ch341prog/transport/transporttest"
)

// chip256x16 has 16 pages of 16 bytes.
var chip256x16 = transporttest.ChipConfig{Size: 256, PageSize: 16, AddrWidth: 1, BusyProbes: 2}

var _ = Describe("Session", func() {
	var (
		ctx    context.Context
		chip   *transporttest.Chip
		bridge *transporttest.Bridge
		events *eventLog
		logger *MockLogger
	)

	newSession := func(opts ...programmer.Option) *programmer.Session {
		var h *transport.Handle
		h, bridge = openHandle(chip)
		opts = append(opts, programmer.WithEventSink(events), programmer.WithLogger(logger))
		return programmer.New(h, testOptions(opts...)...)
	}

	BeforeEach(func() {
		ctx = context.Background()
		chip = transporttest.NewChip(0x50, transporttest.Chip24C02)
		events = &eventLog{}
		logger = &MockLogger{}
	})

	It("should panic without a commander", func() {
		Expect(func() { programmer.New(nil) }).To(Panic())
	})

	It("should have a session ID", func() {
		s := newSession()
		Expect(s.ID()).To(HaveLen(20))
		Expect(s.State()).To(Equal(programmer.StateIdle))
	})

	Context("detecting", func() {
		It("should identify the chip and apply the bus speed", func() {
			s := newSession(programmer.WithSpeed(i2c.SpeedFast))

			dev, err := s.Detect(ctx)

			Expect(err).NotTo(HaveOccurred())
			Expect(dev.Profile().Name).To(Equal("24C02"))
			Expect(dev.Address()).To(Equal(uint8(0x50)))
			Expect(s.Device()).To(BeIdenticalTo(dev))
			Expect(bridge.Speed()).To(Equal(protocol.Speed400kHz))
			Expect(s.State()).To(Equal(programmer.StateIdle))
			Expect(events.States()).To(Equal([]programmer.State{
				programmer.StateDetecting, programmer.StateIdle,
			}))

			detected := events.Kind(programmer.EventDetected)
			Expect(detected).To(HaveLen(1))
			Expect(detected[0].SessionID).To(Equal(s.ID()))
			Expect(detected[0].Total).To(Equal(256))
		})

		It("should use a declared profile without probing geometry", func() {
			p, ok := eeprom.Lookup("24C02")
			Expect(ok).To(BeTrue())
			s := newSession(programmer.WithProfile(p, 0x50))

			dev, err := s.Detect(ctx)

			Expect(err).NotTo(HaveOccurred())
			Expect(dev.Profile()).To(Equal(p))
			Expect(bridge.Transactions()).To(HaveLen(1))
		})

		It("should fail when nothing answers", func() {
			chip = transporttest.NewChip(0x20, transporttest.Chip24C02)
			s := newSession()

			_, err := s.Detect(ctx)

			Expect(err).To(MatchError(eeprom.ErrNoDeviceDetected))
			var oe *programmer.OperationError
			Expect(errors.As(err, &oe)).To(BeTrue())
			Expect(oe.Op).To(Equal(programmer.OpDetect))
			Expect(oe.Phase).To(Equal(programmer.PhaseDetecting))
			Expect(s.State()).To(Equal(programmer.StateFailed))
			Expect(s.LastError()).To(Equal(err))
			Expect(logger.Errors()).To(ContainElement("job failed"))
		})

		It("should fail when a declared chip is absent", func() {
			p, _ := eeprom.Lookup("24C02")
			s := newSession(programmer.WithProfile(p, 0x54))

			_, err := s.Detect(ctx)

			Expect(err).To(MatchError(eeprom.ErrNoDeviceDetected))
		})
	})

	Context("after a failure", func() {
		var s *programmer.Session

		BeforeEach(func() {
			chip = transporttest.NewChip(0x20, transporttest.Chip24C02)
			s = newSession()
			_, err := s.Detect(ctx)
			Expect(err).To(HaveOccurred())
		})

		It("should refuse new jobs until acknowledged", func() {
			_, err := s.Read(0, 16)
			Expect(err).To(MatchError(programmer.ErrNotAcknowledged))
			_, err = s.Detect(ctx)
			Expect(err).To(MatchError(programmer.ErrNotAcknowledged))

			s.Acknowledge()

			Expect(s.State()).To(Equal(programmer.StateIdle))
			Expect(s.LastError()).To(BeNil())
		})
	})

	Context("with a cached device", func() {
		var s *programmer.Session

		BeforeEach(func() {
			s = newSession()
			_, err := s.Detect(ctx)
			Expect(err).NotTo(HaveOccurred())
			events.Reset()
		})

		It("should check the chip still answers before each job", func() {
			job, err := s.Read(0, 16)
			Expect(err).NotTo(HaveOccurred())
			Expect(job.Wait().Err).NotTo(HaveOccurred())

			Expect(events.States()).To(Equal([]programmer.State{
				programmer.StateDetecting, programmer.StateReading, programmer.StateIdle,
			}))
			Expect(events.Kind(programmer.EventDetected)).To(BeEmpty())
		})

		It("should detect again when the chip no longer answers", func() {
			bridge.RemoveChip(chip)
			bigger := transporttest.NewChip(0x51, transporttest.Chip24C256)
			bridge.AddChip(bigger)

			job, err := s.Read(0, 0)
			Expect(err).NotTo(HaveOccurred())
			res := job.Wait()

			Expect(res.Err).NotTo(HaveOccurred())
			Expect(res.Profile.Name).To(Equal("24C256"))
			Expect(res.Data).To(HaveLen(32768))
			Expect(s.Device().Profile().Name).To(Equal("24C256"))
			Expect(s.Device().Address()).To(Equal(uint8(0x51)))
			Expect(events.Kind(programmer.EventDetected)).To(HaveLen(1))
		})

		It("should fail when the chip was removed", func() {
			bridge.RemoveChip(chip)

			job, err := s.Read(0, 16)
			Expect(err).NotTo(HaveOccurred())
			res := job.Wait()

			Expect(res.Err).To(MatchError(eeprom.ErrNoDeviceDetected))
			var oe *programmer.OperationError
			Expect(errors.As(res.Err, &oe)).To(BeTrue())
			Expect(oe.Phase).To(Equal(programmer.PhaseDetecting))
			Expect(s.State()).To(Equal(programmer.StateFailed))
		})
	})

	Context("reading", func() {
		BeforeEach(func() {
			chip.Load(0, pattern(256))
		})

		It("should read a range", func() {
			s := newSession()

			job, err := s.Read(16, 32)
			Expect(err).NotTo(HaveOccurred())
			res := job.Wait()

			Expect(res.Err).NotTo(HaveOccurred())
			Expect(res.Op).To(Equal(programmer.OpRead))
			Expect(res.Offset).To(Equal(16))
			Expect(res.Data).To(Equal(pattern(256)[16:48]))
			Expect(res.Profile.Name).To(Equal("24C02"))
			Expect(res.Image().Bytes(16, 32, 0)).To(Equal(res.Data))
			Expect(events.States()).To(Equal([]programmer.State{
				programmer.StateDetecting, programmer.StateReading, programmer.StateIdle,
			}))
		})

		It("should read to the end of the chip", func() {
			s := newSession()

			job, err := s.Read(0, 0)
			Expect(err).NotTo(HaveOccurred())
			res := job.Wait()

			Expect(res.Err).NotTo(HaveOccurred())
			Expect(res.Data).To(Equal(pattern(256)))
		})

		It("should report progress per page", func() {
			var seen []programmer.Progress
			s := newSession(programmer.WithProgressCallback(func(p programmer.Progress) {
				seen = append(seen, p)
			}))

			job, err := s.Read(0, 64)
			Expect(err).NotTo(HaveOccurred())
			job.Wait()

			Expect(seen).To(HaveLen(8))
			Expect(seen[0].Phase).To(Equal(programmer.PhaseReading))
			Expect(seen[0].BytesDone).To(Equal(8))
			Expect(seen[7].BytesDone).To(Equal(64))
			Expect(seen[7].Percentage).To(BeNumerically("==", 100))
		})

		It("should reject a range past the chip", func() {
			s := newSession()

			job, err := s.Read(250, 16)
			Expect(err).NotTo(HaveOccurred())
			res := job.Wait()

			var re *eeprom.RangeError
			Expect(errors.As(res.Err, &re)).To(BeTrue())
			Expect(s.State()).To(Equal(programmer.StateFailed))
		})

		It("should reject a negative offset", func() {
			s := newSession()
			_, err := s.Read(-1, 16)
			Expect(err).To(HaveOccurred())
		})

		It("should record bus retries", func() {
			s := newSession()
			_, err := s.Detect(ctx)
			Expect(err).NotTo(HaveOccurred())
			bridge.FailAddress(1)

			job, err := s.Read(0, 8)
			Expect(err).NotTo(HaveOccurred())
			res := job.Wait()

			Expect(res.Err).NotTo(HaveOccurred())
			retries := events.Kind(programmer.EventRetry)
			Expect(retries).To(HaveLen(1))
			Expect(retries[0].Message).To(ContainSubstring("0x50 attempt 1"))
			Expect(retries[0].Err).To(ContainSubstring("not acknowledged"))
		})
	})

	Context("writing", func() {
		It("should write and verify an image", func() {
			var results []programmer.Result
			s := newSession(programmer.WithResultCallback(func(r programmer.Result) {
				results = append(results, r)
			}))
			img := memory.New()
			img.SetBytes(0x10, []byte("hello, eeprom"))

			job, err := s.Write(img)
			Expect(err).NotTo(HaveOccurred())
			res := job.Wait()

			Expect(res.Err).NotTo(HaveOccurred())
			Expect(chip.Memory()[0x10:0x1D]).To(Equal([]byte("hello, eeprom")))
			Expect(chip.Memory()[0x0F]).To(Equal(byte(0xFF)))
			Expect(results).To(HaveLen(1))
			Expect(events.States()).To(Equal([]programmer.State{
				programmer.StateDetecting, programmer.StateWriting,
				programmer.StateVerifying, programmer.StateIdle,
			}))
		})

		It("should skip verification when disabled", func() {
			s := newSession(programmer.WithVerify(false))

			job, err := s.Write(memory.FromBytes(0, pattern(8)))
			Expect(err).NotTo(HaveOccurred())
			Expect(job.Wait().Err).NotTo(HaveOccurred())

			Expect(events.States()).NotTo(ContainElement(programmer.StateVerifying))
		})

		It("should fail verification when the chip pages are smaller than declared", func() {
			chip = transporttest.NewChip(0x50, transporttest.ChipConfig{Size: 256, PageSize: 4, AddrWidth: 1, BusyProbes: 2})
			p, _ := eeprom.Lookup("24C02")
			s := newSession(programmer.WithProfile(p, 0x50))

			job, err := s.Write(memory.FromBytes(0, pattern(256)))
			Expect(err).NotTo(HaveOccurred())
			res := job.Wait()

			var mismatch *eeprom.VerifyMismatchError
			Expect(errors.As(res.Err, &mismatch)).To(BeTrue())
			var oe *programmer.OperationError
			Expect(errors.As(res.Err, &oe)).To(BeTrue())
			Expect(oe.Phase).To(Equal(programmer.PhaseVerifying))
			Expect(s.State()).To(Equal(programmer.StateFailed))
		})

		It("should reject an empty image", func() {
			s := newSession()
			_, err := s.Write(memory.New())
			Expect(err).To(HaveOccurred())
			_, err = s.Write(nil)
			Expect(err).To(HaveOccurred())
		})

		It("should refuse a second job while one is running", func() {
			release := make(chan struct{})
			started := make(chan struct{})
			first := true
			s := newSession(programmer.WithProgressCallback(func(programmer.Progress) {
				if first {
					first = false
					close(started)
					<-release
				}
			}))

			job, err := s.Write(memory.FromBytes(0, pattern(32)))
			Expect(err).NotTo(HaveOccurred())
			<-started

			_, err = s.Read(0, 8)
			Expect(err).To(MatchError(programmer.ErrOperationInProgress))
			_, err = s.Detect(ctx)
			Expect(err).To(MatchError(programmer.ErrOperationInProgress))
			Expect(s.State()).To(Equal(programmer.StateWriting))

			close(release)
			Expect(job.Wait().Err).NotTo(HaveOccurred())
			Eventually(job.Done()).Should(BeClosed())
		})
	})

	Context("erasing", func() {
		It("should fill the chip with 0xFF", func() {
			chip.Load(0, make([]byte, 256))
			s := newSession()

			job, err := s.Erase()
			Expect(err).NotTo(HaveOccurred())
			res := job.Wait()

			Expect(res.Err).NotTo(HaveOccurred())
			Expect(chip.Memory()).To(Equal(bytes.Repeat([]byte{0xFF}, 256)))
			Expect(events.States()).To(ContainElement(programmer.StateErasing))
		})

		It("should stop at the page boundary after cancel", func() {
			chip = transporttest.NewChip(0x50, chip256x16)
			chip.Load(0, make([]byte, 256))
			p, err := eeprom.NewProfile("sim256", 256, 16, 0)
			Expect(err).NotTo(HaveOccurred())

			var s *programmer.Session
			s = newSession(
				programmer.WithProfile(p, 0x50),
				programmer.WithProgressCallback(func(pr programmer.Progress) {
					if pr.BytesDone == 80 {
						s.Cancel()
					}
				}),
			)

			job, err := s.Erase()
			Expect(err).NotTo(HaveOccurred())
			res := job.Wait()

			Expect(res.Err).To(MatchError(programmer.ErrCancelled))
			var oe *programmer.OperationError
			Expect(errors.As(res.Err, &oe)).To(BeTrue())
			Expect(oe.Done).To(Equal(80))
			Expect(oe.Total).To(Equal(256))
			Expect(oe.Cancelled()).To(BeTrue())
			Expect(chip.WriteCycles()).To(Equal(5))
			Expect(chip.Memory()[:80]).To(Equal(bytes.Repeat([]byte{0xFF}, 80)))
			Expect(chip.Memory()[80:]).To(Equal(make([]byte, 176)))
			Expect(s.State()).To(Equal(programmer.StateIdle))
			Expect(logger.Infos()).To(ContainElement("job cancelled"))
		})

		It("should ignore cancel when idle", func() {
			s := newSession()
			s.Cancel()
			Expect(s.State()).To(Equal(programmer.StateIdle))
		})
	})

	Context("verifying", func() {
		It("should pass when the chip matches", func() {
			chip.Load(0, pattern(256))
			s := newSession()

			job, err := s.Verify(memory.FromBytes(32, pattern(256)[32:64]))
			Expect(err).NotTo(HaveOccurred())

			Expect(job.Wait().Err).NotTo(HaveOccurred())
			Expect(s.State()).To(Equal(programmer.StateIdle))
		})

		It("should report the first differing byte", func() {
			s := newSession()

			job, err := s.Verify(memory.FromBytes(4, []byte{0x12}))
			Expect(err).NotTo(HaveOccurred())
			res := job.Wait()

			var mismatch *eeprom.VerifyMismatchError
			Expect(errors.As(res.Err, &mismatch)).To(BeTrue())
			Expect(mismatch.Offset).To(Equal(4))
			Expect(mismatch.Expected).To(Equal(byte(0x12)))
			Expect(mismatch.Actual).To(Equal(byte(0xFF)))

			results := events.Kind(programmer.EventResult)
			Expect(results).To(HaveLen(1))
			Expect(results[0].Err).To(ContainSubstring("verify mismatch"))
		})
	})
})
