package document

import (
	"errors"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/invoice-extract/internal/invoice"
)

func TestDocument(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Document Suite")
}

var _ = Describe("Classifier", func() {
	var (
		classifier Classifier
		path       string
		doc        Document
		err        error
	)

	BeforeEach(func() {
		classifier = Classifier{}
	})

	JustBeforeEach(func() {
		doc, err = classifier.Classify(path)
	})

	When("the file is a PDF", func() {
		BeforeEach(func() {
			path = "invoices/March.PDF"
		})

		It("routes to the PDF path", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(doc.Kind).To(Equal(PDF))
			Expect(doc.Ext).To(Equal(".pdf"))
		})
	})

	DescribeTable("image extensions",
		func(p string) {
			d, err := Classifier{Strict: true}.Classify(p)
			Expect(err).NotTo(HaveOccurred())
			Expect(d.Kind).To(Equal(Image))
		},
		Entry("jpg", "scan.jpg"),
		Entry("jpeg", "scan.JPEG"),
		Entry("png", "scan.png"),
		Entry("heic", "photo.heic"),
		Entry("tiff", "fax.tiff"),
	)

	When("the extension is unknown", func() {
		BeforeEach(func() {
			path = "notes.docx"
		})

		It("attempts the image path", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(doc.Kind).To(Equal(Image))
		})

		When("strict extensions are enabled", func() {
			BeforeEach(func() {
				classifier.Strict = true
			})

			It("returns an unsupported format error", func() {
				Expect(errors.Is(err, invoice.ErrUnsupportedFormat)).To(BeTrue())
				Expect(err.Error()).To(ContainSubstring(`".docx"`))
				Expect(doc.Kind).To(Equal(Unsupported))
			})
		})
	})

	When("the file has no extension", func() {
		BeforeEach(func() {
			path = "README"
			classifier.Strict = true
		})

		It("names the missing extension", func() {
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("(none)"))
		})
	})
})

var _ = Describe("IsAllowed", func() {
	It("accepts pdf and images only", func() {
		Expect(IsAllowed("a.pdf")).To(BeTrue())
		Expect(IsAllowed("a.png")).To(BeTrue())
		Expect(IsAllowed("a.txt")).To(BeFalse())
	})
})
