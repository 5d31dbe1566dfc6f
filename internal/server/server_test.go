package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/invoice-extract/internal/invoice"
	"github.com/zombor/invoice-extract/internal/store"
)

func TestServer(t *testing.T) {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	RegisterFailHandler(Fail)
	RunSpecs(t, "Server Suite")
}

type fakeService struct {
	records    map[string]*store.Record
	processErr error
	listErr    error
	deleteErr  error
	uploaded   []string
}

func newFakeService() *fakeService {
	return &fakeService{records: make(map[string]*store.Record)}
}

func (f *fakeService) Process(_ context.Context, filename string, data []byte) (*store.Record, error) {
	f.uploaded = append(f.uploaded, filename+":"+string(data))
	record := &store.Record{ID: "id1", Filename: filename, Kind: "pdf"}
	if f.processErr != nil {
		if errors.Is(f.processErr, invoice.ErrUnsupportedFormat) || errors.Is(f.processErr, invoice.ErrTextAcquisition) {
			record.Error = f.processErr.Error()
			record.ErrorKind = invoice.KindOf(f.processErr)
			return record, f.processErr
		}
		return nil, f.processErr
	}
	record.Result = invoice.NewResult(invoice.Fields{invoice.VendorName: "Acme & Sons"}, nil)
	f.records[record.ID] = record
	return record, nil
}

func (f *fakeService) Get(id string) (*store.Record, error) {
	record, ok := f.records[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return record, nil
}

func (f *fakeService) List() ([]*store.Record, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]*store.Record, 0, len(f.records))
	for _, r := range f.records {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeService) Delete(id string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.records[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.records, id)
	return nil
}

func (f *fakeService) GetFile(id string) ([]byte, string, error) {
	record, ok := f.records[id]
	if !ok || record.Path == "" {
		return nil, "", store.ErrNotFound
	}
	return []byte("%PDF"), "application/pdf", nil
}

func upload(url, filename, body string) *http.Response {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	Expect(err).NotTo(HaveOccurred())
	part.Write([]byte(body))
	Expect(mw.Close()).To(Succeed())

	resp, err := http.Post(url+"/api/extractions", mw.FormDataContentType(), &buf)
	Expect(err).NotTo(HaveOccurred())
	return resp
}

func decode(resp *http.Response, v any) {
	defer resp.Body.Close()
	Expect(json.NewDecoder(resp.Body).Decode(v)).To(Succeed())
}

var _ = Describe("Server", func() {
	var (
		service     *fakeService
		auth        BasicAuth
		ghttpServer *ghttp.Server
	)

	BeforeEach(func() {
		service = newFakeService()
		auth = BasicAuth{}
	})

	JustBeforeEach(func() {
		ghttpServer = ghttp.NewServer()
		ghttpServer.AppendHandlers(New(service, auth, nil).ServeHTTP)
	})

	AfterEach(func() {
		ghttpServer.Close()
	})

	Describe("POST /api/extractions", func() {
		It("extracts the upload and returns the record", func() {
			resp := upload(ghttpServer.URL(), "invoice.pdf", "%PDF")
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			var record store.Record
			decode(resp, &record)
			Expect(record.ID).To(Equal("id1"))
			Expect(record.Result.Fields[invoice.VendorName]).To(Equal("Acme & Sons"))
			Expect(service.uploaded).To(Equal([]string{"invoice.pdf:%PDF"}))
		})

		When("no file is sent", func() {
			It("returns bad request", func() {
				resp, err := http.Post(ghttpServer.URL()+"/api/extractions", "text/plain", bytes.NewBufferString("x"))
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				var body map[string]string
				decode(resp, &body)
				Expect(body).To(HaveKey("error"))
			})
		})

		When("the format is unsupported", func() {
			BeforeEach(func() {
				service.processErr = invoice.NewError(invoice.KindUnsupportedFormat, "notes.docx", `extension ".docx"`, nil)
			})

			It("returns the failed record", func() {
				resp := upload(ghttpServer.URL(), "notes.docx", "PK")
				Expect(resp.StatusCode).To(Equal(http.StatusUnsupportedMediaType))
				var record store.Record
				decode(resp, &record)
				Expect(record.ErrorKind).To(Equal(invoice.KindUnsupportedFormat))
			})
		})

		When("the text cannot be read", func() {
			BeforeEach(func() {
				service.processErr = invoice.NewError(invoice.KindTextAcquisition, "x.pdf", "pdf text", errors.New("encrypted"))
			})

			It("returns unprocessable entity", func() {
				resp := upload(ghttpServer.URL(), "x.pdf", "%PDF")
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))
			})
		})

		When("storage fails", func() {
			BeforeEach(func() {
				service.processErr = errors.New("saving file: disk full")
			})

			It("returns an internal error", func() {
				resp := upload(ghttpServer.URL(), "x.pdf", "%PDF")
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
				var body map[string]string
				decode(resp, &body)
				Expect(body["error"]).To(ContainSubstring("disk full"))
			})
		})
	})

	Describe("GET /api/extractions", func() {
		BeforeEach(func() {
			service.records["a"] = &store.Record{ID: "a"}
		})

		It("lists records", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/extractions")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var records []store.Record
			decode(resp, &records)
			Expect(records).To(HaveLen(1))
		})

		When("listing fails", func() {
			BeforeEach(func() {
				service.listErr = errors.New("db closed")
			})

			It("returns an internal error", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/extractions")
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
			})
		})
	})

	Describe("GET /api/extractions/{id}", func() {
		It("returns not found for unknown IDs", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/extractions/nope")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("returns the record", func() {
			service.records["a"] = &store.Record{ID: "a", Filename: "x.pdf"}
			resp, err := http.Get(ghttpServer.URL() + "/api/extractions/a")
			Expect(err).NotTo(HaveOccurred())
			var record store.Record
			decode(resp, &record)
			Expect(record.Filename).To(Equal("x.pdf"))
		})
	})

	Describe("GET /api/extractions/{id}/result", func() {
		It("returns the bare result document", func() {
			service.records["a"] = &store.Record{ID: "a", Result: invoice.NewResult(invoice.Fields{invoice.InvoiceNumber: "4521"}, nil)}
			resp, err := http.Get(ghttpServer.URL() + "/api/extractions/a/result")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(body).To(MatchJSON(`{
				"Invoice Details": {
					"Vendor Name": "Not Found",
					"Invoice Date": "Not Found",
					"Invoice Number": "4521",
					"Total Amount": "Not Found"
				},
				"Tables": []
			}`))
		})

		It("returns conflict for failed extractions", func() {
			service.records["a"] = &store.Record{ID: "a", Error: "boom"}
			resp, err := http.Get(ghttpServer.URL() + "/api/extractions/a/result")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusConflict))
		})
	})

	Describe("GET /api/extractions/{id}/file", func() {
		It("returns the stored document", func() {
			service.records["a"] = &store.Record{ID: "a", Path: "a_x.pdf"}
			resp, err := http.Get(ghttpServer.URL() + "/api/extractions/a/file")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.Header.Get("Content-Type")).To(Equal("application/pdf"))
			body, _ := io.ReadAll(resp.Body)
			Expect(string(body)).To(Equal("%PDF"))
		})
	})

	Describe("DELETE /api/extractions/{id}", func() {
		It("removes the record", func() {
			service.records["a"] = &store.Record{ID: "a"}
			req, _ := http.NewRequest(http.MethodDelete, ghttpServer.URL()+"/api/extractions/a", nil)
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(service.records).To(BeEmpty())
		})

		It("returns not found for unknown IDs", func() {
			req, _ := http.NewRequest(http.MethodDelete, ghttpServer.URL()+"/api/extractions/nope", nil)
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("CORS", func() {
		It("answers preflight requests", func() {
			req, _ := http.NewRequest(http.MethodOptions, ghttpServer.URL()+"/api/extractions", nil)
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
		})
	})

	When("basic auth is configured", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "admin", Password: "secret"}
		})

		It("rejects requests without credentials", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/extractions")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(resp.Header.Get("WWW-Authenticate")).To(ContainSubstring("Basic"))
		})

		It("accepts valid credentials", func() {
			req, _ := http.NewRequest(http.MethodGet, ghttpServer.URL()+"/api/extractions", nil)
			req.SetBasicAuth("admin", "secret")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})

		It("leaves the health check open", func() {
			resp, err := http.Get(ghttpServer.URL() + "/healthz")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})
})

var _ = Describe("statusFor", func() {
	DescribeTable("maps errors to statuses",
		func(err error, want int) {
			Expect(statusFor(err)).To(Equal(want))
		},
		Entry("not found", store.ErrNotFound, http.StatusNotFound),
		Entry("unsupported", invoice.NewError(invoice.KindUnsupportedFormat, "a", "x", nil), http.StatusUnsupportedMediaType),
		Entry("decode", invoice.NewError(invoice.KindImageDecode, "a", "x", nil), http.StatusUnprocessableEntity),
		Entry("tables", invoice.NewError(invoice.KindTableExtraction, "a", "x", nil), http.StatusUnprocessableEntity),
		Entry("timeout", context.DeadlineExceeded, http.StatusGatewayTimeout),
		Entry("other", errors.New("boom"), http.StatusInternalServerError),
	)
})
