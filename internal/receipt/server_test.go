package receipt

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/receipt-lens/internal/extraction"
)

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		storage     *mockStorage
		recognizer  *mockRecognizer
		auth        BasicAuth
		ghttpServer *ghttp.Server
	)

	BeforeEach(func() {
		db = newMockDB()
		storage = newMockStorage()
		recognizer = newMockRecognizer(receiptText...)
		auth = BasicAuth{}
	})

	JustBeforeEach(func() {
		service := NewServiceWithDeps(db, recognizer, storage, newTestExtractor(),
			&mockIDGenerator{ids: []string{"rec-1"}},
			&mockTimeSource{now: time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)})
		server := NewServerWithMux(service, auth, http.NewServeMux())
		ghttpServer = ghttp.NewServer()
		ghttpServer.AppendHandlers(server.ServeHTTP)
	})

	AfterEach(func() {
		ghttpServer.Close()
	})

	do := func(method, path string, body io.Reader, contentType string) *http.Response {
		req, err := http.NewRequest(method, ghttpServer.URL()+path, body)
		Expect(err).NotTo(HaveOccurred())
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(resp.Body.Close)
		return resp
	}

	decode := func(resp *http.Response, v any) {
		Expect(json.NewDecoder(resp.Body).Decode(v)).To(Succeed())
	}

	textBody := func() io.Reader {
		b, err := json.Marshal(map[string]string{"text": strings.Join(receiptText, "\n")})
		Expect(err).NotTo(HaveOccurred())
		return bytes.NewReader(b)
	}

	Describe("GET /api/health", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "admin", Password: "secret"}
		})

		It("answers without credentials", func() {
			resp := do(http.MethodGet, "/api/health", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})

	Describe("POST /api/extract", func() {
		When("given text", func() {
			It("returns the extraction", func() {
				resp := do(http.MethodPost, "/api/extract", textBody(), "application/json")
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))

				var result extraction.ExtractedReceipt
				decode(resp, &result)
				Expect(result.MerchantName).To(HaveValue(Equal("INDOMARET")))
				Expect(result.LineItems).To(HaveLen(3))
				Expect(db.records).To(BeEmpty())
			})
		})

		When("given lines with boxes", func() {
			It("uses them in order", func() {
				body := `{"lines": [
					{"text": "TOKO MAJU", "box": {"x": 0, "y": 0, "width": 100, "height": 10}},
					{"text": "Roti Tawar 15.000", "box": {"x": 0, "y": 100, "width": 100, "height": 10}},
					{"text": "Total 15.000", "box": {"x": 0, "y": 200, "width": 100, "height": 10}}
				]}`
				resp := do(http.MethodPost, "/api/extract", strings.NewReader(body), "application/json")
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var result extraction.ExtractedReceipt
				decode(resp, &result)
				Expect(result.LineItems).To(HaveLen(1))
				Expect(result.LineItems[0].SourceLineIndex).To(Equal(1))
			})
		})

		When("the body is empty", func() {
			It("returns bad request", func() {
				resp := do(http.MethodPost, "/api/extract", strings.NewReader(`{}`), "application/json")
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})

		When("the body is not JSON", func() {
			It("returns bad request", func() {
				resp := do(http.MethodPost, "/api/extract", strings.NewReader(`nope`), "application/json")
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})
	})

	Describe("POST /api/receipts/text", func() {
		It("queues the extraction", func() {
			resp := do(http.MethodPost, "/api/receipts/text", textBody(), "application/json")
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			var record Record
			decode(resp, &record)
			Expect(record.ID).To(Equal("rec-1"))
			Expect(record.Status).To(Equal(StatusPending))
			Expect(db.records).To(HaveKey("rec-1"))
		})
	})

	Describe("POST /api/receipts", func() {
		upload := func(filename, contentType string, data []byte) *http.Response {
			var buf bytes.Buffer
			writer := multipart.NewWriter(&buf)
			header := make(map[string][]string)
			header["Content-Disposition"] = []string{`form-data; name="file"; filename="` + filename + `"`}
			if contentType != "" {
				header["Content-Type"] = []string{contentType}
			}
			part, err := writer.CreatePart(header)
			Expect(err).NotTo(HaveOccurred())
			_, err = part.Write(data)
			Expect(err).NotTo(HaveOccurred())
			Expect(writer.Close()).To(Succeed())
			return do(http.MethodPost, "/api/receipts", &buf, writer.FormDataContentType())
		}

		It("recognizes and queues the upload", func() {
			resp := upload("receipt.jpg", "image/jpeg", []byte("jpeg"))
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			var record Record
			decode(resp, &record)
			Expect(record.Filename).To(Equal("rec-1_receipt.jpg"))
			Expect(record.Extraction.Total).NotTo(BeNil())
			Expect(recognizer.contentTypes).To(Equal([]string{"image/jpeg"}))
		})

		It("falls back to the file extension for the content type", func() {
			resp := upload("scan.pdf", "application/octet-stream", []byte("%PDF"))
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			Expect(recognizer.contentTypes).To(Equal([]string{"application/pdf"}))
		})

		When("no file is sent", func() {
			It("returns bad request", func() {
				var buf bytes.Buffer
				writer := multipart.NewWriter(&buf)
				Expect(writer.WriteField("note", "x")).To(Succeed())
				Expect(writer.Close()).To(Succeed())
				resp := do(http.MethodPost, "/api/receipts", &buf, writer.FormDataContentType())
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})

		When("recognition fails", func() {
			BeforeEach(func() {
				recognizer.err = io.ErrUnexpectedEOF
			})

			It("returns bad request with the error", func() {
				resp := upload("receipt.jpg", "image/jpeg", []byte("jpeg"))
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				var body map[string]string
				decode(resp, &body)
				Expect(body["error"]).To(ContainSubstring("recognizing receipt"))
			})
		})
	})

	Describe("GET /api/receipts", func() {
		BeforeEach(func() {
			db.records["a"] = &Record{ID: "a", Status: StatusPending}
			db.records["b"] = &Record{ID: "b", Status: StatusApproved}
		})

		It("lists every record", func() {
			resp := do(http.MethodGet, "/api/receipts", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var records []*Record
			decode(resp, &records)
			Expect(records).To(HaveLen(2))
		})

		It("filters by status", func() {
			resp := do(http.MethodGet, "/api/receipts?status=approved", nil, "")
			var records []*Record
			decode(resp, &records)
			Expect(records).To(HaveLen(1))
			Expect(records[0].ID).To(Equal("b"))
		})

		It("rejects unknown statuses", func() {
			resp := do(http.MethodGet, "/api/receipts?status=lost", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		When("there are no records", func() {
			BeforeEach(func() {
				db.records = map[string]*Record{}
			})

			It("returns an empty array", func() {
				resp := do(http.MethodGet, "/api/receipts", nil, "")
				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(strings.TrimSpace(string(body))).To(Equal("[]"))
			})
		})
	})

	Describe("GET /api/receipts/{id}", func() {
		BeforeEach(func() {
			db.records["a"] = &Record{ID: "a", Status: StatusPending}
		})

		It("returns the record", func() {
			resp := do(http.MethodGet, "/api/receipts/a", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})

		It("returns not found for unknown IDs", func() {
			resp := do(http.MethodGet, "/api/receipts/zzz", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("GET /api/receipts/{id}/file", func() {
		BeforeEach(func() {
			storage.files["a_receipt.png"] = []byte("png-data")
			db.records["a"] = &Record{ID: "a", Filename: "a_receipt.png", ContentType: "image/png"}
		})

		It("serves the file with its content type", func() {
			resp := do(http.MethodGet, "/api/receipts/a/file", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("image/png"))
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(Equal("png-data"))
		})
	})

	Describe("DELETE /api/receipts/{id}", func() {
		BeforeEach(func() {
			db.records["a"] = &Record{ID: "a"}
		})

		It("removes the record", func() {
			resp := do(http.MethodDelete, "/api/receipts/a", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(db.records).To(BeEmpty())
		})

		It("returns not found for unknown IDs", func() {
			resp := do(http.MethodDelete, "/api/receipts/zzz", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("POST /api/receipts/{id}/review", func() {
		BeforeEach(func() {
			name := "INDOMARET"
			db.records["a"] = &Record{ID: "a", Status: StatusPending, Extraction: extraction.ExtractedReceipt{MerchantName: &name}}
		})

		It("approves the record with the overrides", func() {
			body := `{"merchant_name": "Indomaret Sudirman", "date": "2024-01-31", "total": "18500", "currency": "IDR"}`
			resp := do(http.MethodPost, "/api/receipts/a/review", strings.NewReader(body), "application/json")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var record Record
			decode(resp, &record)
			Expect(record.Status).To(Equal(StatusApproved))
			Expect(record.Review.MerchantName).To(HaveValue(Equal("Indomaret Sudirman")))
			Expect(record.Review.Total.Currency).To(Equal("IDR"))
			Expect(record.Extraction.MerchantName).To(HaveValue(Equal("INDOMARET")))
		})

		It("rejects invalid values", func() {
			resp := do(http.MethodPost, "/api/receipts/a/review", strings.NewReader(`{"merchant_name": " "}`), "application/json")
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("returns not found for unknown IDs", func() {
			resp := do(http.MethodPost, "/api/receipts/zzz/review", strings.NewReader(`{}`), "application/json")
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("basic auth", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "admin", Password: "secret"}
		})

		It("rejects requests without credentials", func() {
			resp := do(http.MethodGet, "/api/receipts", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(resp.Header.Get("WWW-Authenticate")).To(ContainSubstring("Basic"))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
		})

		It("accepts valid credentials", func() {
			req, err := http.NewRequest(http.MethodGet, ghttpServer.URL()+"/api/receipts", nil)
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("admin:secret")))
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})

		It("rejects wrong credentials", func() {
			req, err := http.NewRequest(http.MethodGet, ghttpServer.URL()+"/api/receipts", nil)
			Expect(err).NotTo(HaveOccurred())
			req.SetBasicAuth("admin", "wrong")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})
	})

	Describe("CORS", func() {
		It("answers preflight requests", func() {
			resp := do(http.MethodOptions, "/api/receipts", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Methods")).To(ContainSubstring("POST"))
		})
	})
})
