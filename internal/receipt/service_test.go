package receipt

import (
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/zombor/receipt-lens/internal/extraction"
)

var _ = Describe("Service", func() {
	var (
		db         *mockDB
		storage    *mockStorage
		recognizer *mockRecognizer
		idGen      *mockIDGenerator
		timeSrc    *mockTimeSource
		service    *Service
	)

	BeforeEach(func() {
		db = newMockDB()
		storage = newMockStorage()
		recognizer = newMockRecognizer(receiptText...)
		idGen = &mockIDGenerator{ids: []string{"rec-1"}}
		timeSrc = &mockTimeSource{now: time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)}
		service = NewServiceWithDeps(db, recognizer, storage, newTestExtractor(), idGen, timeSrc)
	})

	Describe("ProcessUpload", func() {
		var (
			filename    string
			data        []byte
			contentType string
			record      *Record
			err         error
		)

		BeforeEach(func() {
			filename = "IMG_2024 (1).jpg"
			data = []byte("fake image data")
			contentType = "image/jpeg"
		})

		JustBeforeEach(func() {
			record, err = service.ProcessUpload(filename, data, contentType)
		})

		When("recognition succeeds", func() {
			It("does not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("queues a pending record", func() {
				Expect(record.ID).To(Equal("rec-1"))
				Expect(record.Status).To(Equal(StatusPending))
				Expect(record.CreatedAt).To(Equal(timeSrc.now))
				Expect(db.records).To(HaveKey("rec-1"))
			})

			It("stores the extraction", func() {
				Expect(record.Extraction.MerchantName).To(HaveValue(Equal("INDOMARET")))
				Expect(record.Extraction.Total.Amount).To(BeComparableTo(decimal.RequireFromString("18500")))
				Expect(record.Extraction.LineItems).To(HaveLen(3))
			})

			It("keeps the file under a sanitized name", func() {
				Expect(record.Filename).To(Equal("rec-1_IMG_2024 1.jpg"))
				Expect(storage.files).To(HaveKey(record.Filename))
				Expect(record.ContentType).To(Equal("image/jpeg"))
			})
		})

		When("a text file is uploaded", func() {
			BeforeEach(func() {
				filename = "receipt.txt"
				data = []byte(strings.Join(receiptText, "\n"))
				contentType = "text/plain; charset=utf-8"
			})

			It("skips recognition", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(recognizer.calls).To(BeZero())
				Expect(record.Extraction.Total).NotTo(BeNil())
			})
		})

		When("recognition fails", func() {
			BeforeEach(func() {
				recognizer.err = errors.New("model unavailable")
			})

			It("returns the error", func() {
				Expect(err).To(MatchError(ContainSubstring("recognizing receipt")))
			})

			It("removes the saved file", func() {
				Expect(storage.files).To(BeEmpty())
			})

			It("does not queue a record", func() {
				Expect(db.records).To(BeEmpty())
			})
		})

		When("saving the file fails", func() {
			BeforeEach(func() {
				storage.saveErr = errors.New("disk full")
			})

			It("returns the error", func() {
				Expect(err).To(MatchError(ContainSubstring("saving file")))
				Expect(recognizer.calls).To(BeZero())
			})
		})

		When("saving the record fails", func() {
			BeforeEach(func() {
				db.saveErr = errors.New("database locked")
			})

			It("returns the error and removes the file", func() {
				Expect(err).To(MatchError(ContainSubstring("saving record to database")))
				Expect(storage.files).To(BeEmpty())
			})
		})

		When("no recognizer is configured", func() {
			BeforeEach(func() {
				service = NewServiceWithDeps(db, nil, storage, newTestExtractor(), idGen, timeSrc)
			})

			It("returns ErrNoRecognizer", func() {
				Expect(err).To(MatchError(ErrNoRecognizer))
				Expect(storage.files).To(BeEmpty())
			})
		})
	})

	Describe("SubmitLines", func() {
		var (
			record *Record
			err    error
		)

		JustBeforeEach(func() {
			record, err = service.SubmitLines(extraction.SplitLines(strings.Join(receiptText, "\n")))
		})

		It("queues the extraction without a file", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(record.Filename).To(BeEmpty())
			Expect(record.Status).To(Equal(StatusPending))
			Expect(record.Extraction.Confidence).To(Equal(1.0))
		})
	})

	Describe("Extract", func() {
		It("does not store anything", func() {
			result := service.Extract(extraction.SplitLines(strings.Join(receiptText, "\n")))
			Expect(result.MerchantName).To(HaveValue(Equal("INDOMARET")))
			Expect(db.records).To(BeEmpty())
		})
	})

	Describe("ListRecords", func() {
		BeforeEach(func() {
			db.records["old"] = &Record{ID: "old", Status: StatusApproved, CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
			db.records["new"] = &Record{ID: "new", Status: StatusPending, CreatedAt: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)}
			db.records["mid"] = &Record{ID: "mid", Status: StatusPending, CreatedAt: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)}
		})

		It("returns newest first", func() {
			records, err := service.ListRecords("")
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(3))
			Expect(records[0].ID).To(Equal("new"))
			Expect(records[2].ID).To(Equal("old"))
		})

		It("filters by status", func() {
			records, err := service.ListRecords(StatusPending)
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(2))
		})

		When("the database fails", func() {
			BeforeEach(func() {
				db.listErr = errors.New("io error")
			})

			It("returns the error", func() {
				_, err := service.ListRecords("")
				Expect(err).To(MatchError(ContainSubstring("listing records")))
			})
		})
	})

	Describe("DeleteRecord", func() {
		var err error

		BeforeEach(func() {
			storage.files["rec-1_receipt.jpg"] = []byte("data")
			db.records["rec-1"] = &Record{ID: "rec-1", Filename: "rec-1_receipt.jpg"}
		})

		It("removes the record and its file", func() {
			err = service.DeleteRecord("rec-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(db.records).To(BeEmpty())
			Expect(storage.files).To(BeEmpty())
		})

		When("the file is already gone", func() {
			BeforeEach(func() {
				delete(storage.files, "rec-1_receipt.jpg")
			})

			It("still removes the record", func() {
				Expect(service.DeleteRecord("rec-1")).To(Succeed())
				Expect(db.records).To(BeEmpty())
			})
		})

		When("the record does not exist", func() {
			It("returns ErrNotFound", func() {
				Expect(service.DeleteRecord("missing")).To(MatchError(ErrNotFound))
			})
		})
	})

	Describe("GetRecordFile", func() {
		When("the record has no file", func() {
			BeforeEach(func() {
				db.records["rec-1"] = &Record{ID: "rec-1"}
			})

			It("returns ErrNotFound", func() {
				_, _, err := service.GetRecordFile("rec-1")
				Expect(err).To(MatchError(ErrNotFound))
			})
		})

		When("the file exists", func() {
			BeforeEach(func() {
				storage.files["rec-1_r.png"] = []byte("png")
				db.records["rec-1"] = &Record{ID: "rec-1", Filename: "rec-1_r.png", ContentType: "image/png"}
			})

			It("returns the data and content type", func() {
				data, contentType, err := service.GetRecordFile("rec-1")
				Expect(err).NotTo(HaveOccurred())
				Expect(data).To(Equal([]byte("png")))
				Expect(contentType).To(Equal("image/png"))
			})
		})
	})

	Describe("ApplyReview", func() {
		var (
			input  ReviewInput
			record *Record
			err    error
		)

		BeforeEach(func() {
			input = ReviewInput{}
			_, submitErr := service.SubmitLines(extraction.SplitLines(strings.Join(receiptText, "\n")))
			Expect(submitErr).NotTo(HaveOccurred())
			timeSrc.now = timeSrc.now.Add(time.Hour)
		})

		JustBeforeEach(func() {
			record, err = service.ApplyReview("rec-1", input)
		})

		When("nothing is overridden", func() {
			It("approves the extracted values", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(record.Status).To(Equal(StatusApproved))
				Expect(record.MerchantName()).To(HaveValue(Equal("INDOMARET")))
				Expect(record.Total().Amount).To(BeComparableTo(decimal.RequireFromString("18500")))
				Expect(record.Review.ReviewedAt).To(Equal(timeSrc.now))
				Expect(record.UpdatedAt).To(Equal(timeSrc.now))
			})
		})

		When("fields are overridden", func() {
			BeforeEach(func() {
				name := "Indomaret Sudirman"
				date := civil.Date{Year: 2024, Month: 1, Day: 30}
				total := decimal.RequireFromString("19000")
				currency := "idr"
				input = ReviewInput{MerchantName: &name, Date: &date, Total: &total, Currency: &currency}
			})

			It("stores the reviewed values", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(record.MerchantName()).To(HaveValue(Equal("Indomaret Sudirman")))
				Expect(record.Date()).To(HaveValue(Equal(civil.Date{Year: 2024, Month: 1, Day: 30})))
				Expect(record.Total().Amount).To(BeComparableTo(decimal.RequireFromString("19000")))
				Expect(record.Total().Currency).To(Equal("IDR"))
			})

			It("keeps the extraction untouched", func() {
				Expect(record.Extraction.MerchantName).To(HaveValue(Equal("INDOMARET")))
				Expect(record.Extraction.Total.Amount).To(BeComparableTo(decimal.RequireFromString("18500")))
			})
		})

		When("the merchant name is blank", func() {
			BeforeEach(func() {
				blank := "  "
				input.MerchantName = &blank
			})

			It("returns ErrInvalidReview", func() {
				Expect(err).To(MatchError(ErrInvalidReview))
				Expect(db.records["rec-1"].Status).To(Equal(StatusPending))
			})
		})

		When("the total is negative", func() {
			BeforeEach(func() {
				total := decimal.RequireFromString("-1")
				input.Total = &total
			})

			It("returns ErrInvalidReview", func() {
				Expect(err).To(MatchError(ErrInvalidReview))
			})
		})

		When("the record does not exist", func() {
			JustBeforeEach(func() {
				record, err = service.ApplyReview("missing", input)
			})

			It("returns ErrNotFound", func() {
				Expect(err).To(MatchError(ErrNotFound))
			})
		})
	})
})

var _ = Describe("sanitizeFilename", func() {
	DescribeTable("cleaning",
		func(in, want string) {
			Expect(sanitizeFilename(in)).To(Equal(want))
		},
		Entry("keeps simple names", "receipt.jpg", "receipt.jpg"),
		Entry("strips special characters", "IMG_2024 (1).jpg", "IMG_2024 1.jpg"),
		Entry("defaults empty names", "!!!.png", "receipt.png"),
		Entry("strips traversal", "../../etc/passwd", "etcpasswd"),
		Entry("truncates long names", strings.Repeat("a", 80)+".pdf", strings.Repeat("a", 50)+".pdf"),
	)
})
