package scanning

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type mockOCR struct {
	calls     int
	lastImage []byte
	lastLangs []string
	text      string
	err       error
}

func (m *mockOCR) Recognize(ctx context.Context, pngData []byte, languages []string) (string, error) {
	m.calls++
	m.lastImage = pngData
	m.lastLangs = languages
	return m.text, m.err
}

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.Black)
	return img
}

// buildPDF assembles a PDF with one 1x1 inch page per entry. Each non-empty
// entry is drawn as a line of Helvetica text; empty entries give pages with
// nothing on them, like a scan without a text layer.
func buildPDF(pages ...string) []byte {
	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}

	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
	}
	for i, text := range pages {
		content := ""
		if text != "" {
			content = fmt.Sprintf("BT /F1 8 Tf 4 36 Td (%s) Tj ET", text)
		}
		objects = append(objects,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 72 72] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		)
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

// pageText reads one page of the text layer straight from MuPDF
func layerText(data []byte, page int) string {
	doc, err := fitz.NewFromMemory(data)
	Expect(err).NotTo(HaveOccurred())
	defer doc.Close()
	text, err := doc.Text(page)
	Expect(err).NotTo(HaveOccurred())
	return text
}

func writeFile(dir, name string, data []byte) string {
	path := filepath.Join(dir, name)
	Expect(os.WriteFile(path, data, 0644)).To(Succeed())
	return path
}

var _ = Describe("IsSupported", func() {
	DescribeTable("extensions",
		func(name string, expected bool) {
			Expect(IsSupported(name)).To(Equal(expected))
		},
		Entry("pdf", "receipt.pdf", true),
		Entry("upper case pdf", "RECEIPT.PDF", true),
		Entry("jpg", "photo.jpg", true),
		Entry("jpeg", "photo.jpeg", true),
		Entry("png", "scan.png", true),
		Entry("heic", "IMG_0001.HEIC", true),
		Entry("text", "notes.txt", false),
		Entry("no extension", "README", false),
	)
})

var _ = Describe("TextExtractor", func() {
	var (
		ocr       *mockOCR
		extractor *TextExtractor
		tmpDir    string
		path      string
		text      string
	)

	BeforeEach(func() {
		ocr = &mockOCR{text: "Квитанція № 1"}
		tmpDir = GinkgoT().TempDir()
		extractor = NewTextExtractor(ocr, ExtractorConfig{})
	})

	JustBeforeEach(func() {
		text = extractor.Extract(context.Background(), path)
	})

	When("the document is a PNG image", func() {
		var pngData []byte

		BeforeEach(func() {
			var buf bytes.Buffer
			Expect(png.Encode(&buf, testImage())).To(Succeed())
			pngData = buf.Bytes()
			path = writeFile(tmpDir, "scan.png", pngData)
		})

		It("should return the OCR text", func() {
			Expect(text).To(Equal("Квитанція № 1"))
		})

		It("should pass the image through unchanged", func() {
			Expect(ocr.lastImage).To(Equal(pngData))
		})

		It("should use the default languages", func() {
			Expect(ocr.lastLangs).To(Equal([]string{"ukr", "eng"}))
		})
	})

	When("the document is a JPEG image", func() {
		BeforeEach(func() {
			var buf bytes.Buffer
			Expect(jpeg.Encode(&buf, testImage(), nil)).To(Succeed())
			path = writeFile(tmpDir, "photo.jpg", buf.Bytes())
		})

		It("should convert it to PNG for OCR", func() {
			Expect(ocr.calls).To(Equal(1))
			Expect(isPNGFormat(ocr.lastImage)).To(BeTrue())
		})
	})

	When("custom languages are configured", func() {
		BeforeEach(func() {
			extractor = NewTextExtractor(ocr, ExtractorConfig{Languages: []string{"ukr"}})
			var buf bytes.Buffer
			Expect(png.Encode(&buf, testImage())).To(Succeed())
			path = writeFile(tmpDir, "scan.png", buf.Bytes())
		})

		It("should pass them to the OCR engine", func() {
			Expect(ocr.lastLangs).To(Equal([]string{"ukr"}))
		})
	})

	When("the OCR engine fails", func() {
		BeforeEach(func() {
			ocr.err = errors.New("engine crashed")
			var buf bytes.Buffer
			Expect(png.Encode(&buf, testImage())).To(Succeed())
			path = writeFile(tmpDir, "scan.png", buf.Bytes())
		})

		It("should return no text", func() {
			Expect(text).To(BeEmpty())
		})
	})

	When("no OCR engine is configured", func() {
		BeforeEach(func() {
			extractor = NewTextExtractor(nil, ExtractorConfig{})
			var buf bytes.Buffer
			Expect(png.Encode(&buf, testImage())).To(Succeed())
			path = writeFile(tmpDir, "scan.png", buf.Bytes())
		})

		It("should return no text", func() {
			Expect(text).To(BeEmpty())
		})
	})

	When("the image is corrupt", func() {
		BeforeEach(func() {
			path = writeFile(tmpDir, "photo.jpg", []byte("not an image"))
		})

		It("should return no text", func() {
			Expect(text).To(BeEmpty())
		})

		It("should not call the OCR engine", func() {
			Expect(ocr.calls).To(BeZero())
		})
	})

	When("the PDF has a text layer", func() {
		var pdf []byte

		BeforeEach(func() {
			pdf = buildPDF("Receipt 12345", "", "Total 150.50")
			path = writeFile(tmpDir, "receipt.pdf", pdf)
		})

		It("should join the text of every page with a newline after each", func() {
			Expect(text).To(Equal(layerText(pdf, 0) + "\n" + layerText(pdf, 2) + "\n"))
		})

		It("should keep the page order", func() {
			Expect(text).To(ContainSubstring("Receipt 12345"))
			Expect(text).To(ContainSubstring("Total 150.50"))
			Expect(strings.Index(text, "Receipt 12345")).To(BeNumerically("<", strings.Index(text, "Total 150.50")))
		})

		It("should not call the OCR engine", func() {
			Expect(ocr.calls).To(BeZero())
		})
	})

	When("the PDF is a scan without a text layer", func() {
		BeforeEach(func() {
			extractor = NewTextExtractor(ocr, ExtractorConfig{DPI: 72})
			path = writeFile(tmpDir, "scan.pdf", buildPDF("", "", ""))
		})

		It("should OCR every rendered page", func() {
			Expect(ocr.calls).To(Equal(3))
			Expect(isPNGFormat(ocr.lastImage)).To(BeTrue())
		})

		It("should join the recognized text page by page", func() {
			Expect(text).To(Equal("Квитанція № 1\nКвитанція № 1\nКвитанція № 1\n"))
		})

		When("pages are capped", func() {
			BeforeEach(func() {
				extractor = NewTextExtractor(ocr, ExtractorConfig{DPI: 72, MaxPages: 2})
			})

			It("should OCR only the first pages", func() {
				Expect(ocr.calls).To(Equal(2))
				Expect(text).To(Equal("Квитанція № 1\nКвитанція № 1\n"))
			})
		})

		When("the OCR engine finds nothing", func() {
			BeforeEach(func() {
				ocr.text = ""
			})

			It("should return no text", func() {
				Expect(ocr.calls).To(Equal(3))
				Expect(text).To(BeEmpty())
			})
		})

		When("the OCR engine fails on every page", func() {
			BeforeEach(func() {
				ocr.err = errors.New("engine crashed")
			})

			It("should try each page and return no text", func() {
				Expect(ocr.calls).To(Equal(3))
				Expect(text).To(BeEmpty())
			})
		})

		When("no OCR engine is configured", func() {
			BeforeEach(func() {
				extractor = NewTextExtractor(nil, ExtractorConfig{DPI: 72})
			})

			It("should return no text", func() {
				Expect(text).To(BeEmpty())
			})
		})
	})

	When("the PDF is corrupt", func() {
		BeforeEach(func() {
			path = writeFile(tmpDir, "receipt.pdf", []byte("%PDF-garbage"))
		})

		It("should return no text", func() {
			Expect(text).To(BeEmpty())
		})
	})

	When("the extension is not supported", func() {
		BeforeEach(func() {
			path = writeFile(tmpDir, "notes.txt", []byte("Квитанція № 1"))
		})

		It("should return no text", func() {
			Expect(text).To(BeEmpty())
		})

		It("should not call the OCR engine", func() {
			Expect(ocr.calls).To(BeZero())
		})
	})

	When("the file does not exist", func() {
		BeforeEach(func() {
			path = filepath.Join(tmpDir, "missing.png")
		})

		It("should return no text", func() {
			Expect(text).To(BeEmpty())
		})
	})
})
