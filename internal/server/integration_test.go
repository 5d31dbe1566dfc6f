package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"mime/multipart"
	"net/http"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
	"github.com/tsawler/tabula/tables"

	"github.com/zombor/invoice-extract/internal/invoice"
	"github.com/zombor/invoice-extract/internal/ocr"
	"github.com/zombor/invoice-extract/internal/pdftext"
	"github.com/zombor/invoice-extract/internal/pipeline"
	"github.com/zombor/invoice-extract/internal/server"
	"github.com/zombor/invoice-extract/internal/store"
	"github.com/zombor/invoice-extract/internal/tabular"
	"github.com/zombor/invoice-extract/internal/testpdf"
)

// silentRecognizer fails the test if OCR is ever reached
type silentRecognizer struct{}

func (silentRecognizer) Recognize(context.Context, image.Image, ocr.Options) (string, error) {
	Fail("OCR called for a PDF")
	return "", nil
}

func (silentRecognizer) Close() error { return nil }

var _ = Describe("Integration", func() {
	var (
		db       *store.BoltDB
		storage  *store.LocalStorage
		ghServer *ghttp.Server
		pdf      []byte
	)

	BeforeEach(func() {
		tempDir := GinkgoT().TempDir()

		var err error
		db, err = store.NewBoltDB(filepath.Join(tempDir, "test.db"))
		Expect(err).NotTo(HaveOccurred())

		storage, err = store.NewLocalStorage(filepath.Join(tempDir, "uploads"))
		Expect(err).NotTo(HaveOccurred())

		p, err := pipeline.New(pipeline.DefaultConfig(), pipeline.Capabilities{
			Recognizer: silentRecognizer{},
			PageTexter: pdftext.NewPDFCPU(),
			Tables:     tabular.NewTabula(tables.Config{}),
		}, nil)
		Expect(err).NotTo(HaveOccurred())

		srv := server.New(store.NewService(db, storage, p, nil), server.BasicAuth{}, nil)
		ghServer = ghttp.NewServer()
		ghServer.AppendHandlers(srv.ServeHTTP, srv.ServeHTTP, srv.ServeHTTP)

		pdf = testpdf.Build(testpdf.Lines(
			"Acme Corp",
			"Invoice Number: 4521",
			"Total Due: $1,204.50",
		))
	})

	AfterEach(func() {
		ghServer.Close()
		db.Close()
	})

	It("uploads a PDF, extracts it and serves the stored result", func() {
		body := &bytes.Buffer{}
		writer := multipart.NewWriter(body)
		part, err := writer.CreateFormFile("file", "acme invoice.pdf")
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write(pdf)
		Expect(err).NotTo(HaveOccurred())
		Expect(writer.Close()).To(Succeed())

		resp, err := http.Post(ghServer.URL()+"/api/extractions", writer.FormDataContentType(), body)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))

		var record store.Record
		Expect(json.NewDecoder(resp.Body).Decode(&record)).To(Succeed())
		Expect(record.Kind).To(Equal("pdf"))
		Expect(record.Result.Fields).To(Equal(invoice.Fields{
			invoice.VendorName:    "Acme Corp",
			invoice.InvoiceNumber: "4521",
			invoice.TotalAmount:   "1,204.50",
			invoice.InvoiceDate:   invoice.NotFound,
		}))

		saved, err := db.Get(record.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(saved.Result.Fields).To(Equal(record.Result.Fields))

		data, err := storage.Get(record.Path)
		Expect(err).NotTo(HaveOccurred())
		Expect(data).To(Equal(pdf))

		resultResp, err := http.Get(ghServer.URL() + "/api/extractions/" + record.ID + "/result")
		Expect(err).NotTo(HaveOccurred())
		defer resultResp.Body.Close()
		var result invoice.Result
		Expect(json.NewDecoder(resultResp.Body).Decode(&result)).To(Succeed())
		Expect(result.Fields[invoice.InvoiceNumber]).To(Equal("4521"))

		req, err := http.NewRequest(http.MethodDelete, ghServer.URL()+"/api/extractions/"+record.ID, nil)
		Expect(err).NotTo(HaveOccurred())
		delResp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		delResp.Body.Close()
		Expect(delResp.StatusCode).To(Equal(http.StatusNoContent))

		_, err = db.Get(record.ID)
		Expect(err).To(MatchError(store.ErrNotFound))
		_, err = storage.Get(record.Path)
		Expect(err).To(HaveOccurred())
	})
})
