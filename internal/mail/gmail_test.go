package mail

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

var _ = Describe("Gmail", func() {
	var (
		server *ghttp.Server
		store  *mockStore
		source *Gmail
		paths  []string
		err    error
	)

	const messagesPath = "/gmail/v1/users/me/messages"

	BeforeEach(func() {
		server = ghttp.NewServer()
		store = newMockStore()

		svc, svcErr := gmail.NewService(context.Background(),
			option.WithEndpoint(server.URL()+"/"),
			option.WithHTTPClient(http.DefaultClient),
		)
		Expect(svcErr).NotTo(HaveOccurred())
		source = NewGmailWithService(svc, store, Options{})
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		paths, err = source.Fetch(context.Background())
	})

	When("a message carries a nested receipt attachment", func() {
		BeforeEach(func() {
			store.files["18c2f9a1_cached.png"] = []byte("cached")
			server.AppendHandlers(
				ghttp.CombineHandlers(
					ghttp.VerifyRequest(http.MethodGet, messagesPath),
					ghttp.VerifyForm(url.Values{"q": {Query}}),
					ghttp.RespondWithJSONEncoded(http.StatusOK, gmail.ListMessagesResponse{
						Messages: []*gmail.Message{{Id: "18c2f9a1b2c3d4e5"}},
					}),
				),
				ghttp.CombineHandlers(
					ghttp.VerifyRequest(http.MethodGet, messagesPath+"/18c2f9a1b2c3d4e5"),
					ghttp.RespondWithJSONEncoded(http.StatusOK, gmail.Message{
						Id: "18c2f9a1b2c3d4e5",
						Payload: &gmail.MessagePart{
							MimeType: "multipart/mixed",
							Parts: []*gmail.MessagePart{
								{MimeType: "text/plain", Body: &gmail.MessagePartBody{Size: 120}},
								{MimeType: "multipart/related", Parts: []*gmail.MessagePart{
									{Filename: "rahunok.pdf", Body: &gmail.MessagePartBody{AttachmentId: "att-1", Size: 20000}},
									{Filename: "logo.png", Body: &gmail.MessagePartBody{AttachmentId: "att-2", Size: 800}},
								}},
								{Filename: "cached.png", Body: &gmail.MessagePartBody{AttachmentId: "att-3", Size: 50000}},
							},
						},
					}),
				),
				ghttp.CombineHandlers(
					ghttp.VerifyRequest(http.MethodGet, messagesPath+"/18c2f9a1b2c3d4e5/attachments/att-1"),
					ghttp.RespondWithJSONEncoded(http.StatusOK, gmail.MessagePartBody{
						Data: base64.URLEncoding.EncodeToString([]byte("%PDF-1.4 квитанція")),
					}),
				),
			)
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should return downloaded and existing attachment paths", func() {
			Expect(paths).To(Equal([]string{
				"/attachments/18c2f9a1_rahunok.pdf",
				"/attachments/18c2f9a1_cached.png",
			}))
		})

		It("should decode the attachment data", func() {
			Expect(store.files["18c2f9a1_rahunok.pdf"]).To(Equal([]byte("%PDF-1.4 квитанція")))
			Expect(server.ReceivedRequests()).To(HaveLen(3))
		})
	})

	When("fetching a message fails", func() {
		BeforeEach(func() {
			server.AppendHandlers(
				ghttp.RespondWithJSONEncoded(http.StatusOK, gmail.ListMessagesResponse{
					Messages: []*gmail.Message{{Id: "broken"}, {Id: "empty"}},
				}),
				ghttp.RespondWith(http.StatusNotFound, `{"error":{"code":404,"message":"Not Found"}}`),
				ghttp.RespondWithJSONEncoded(http.StatusOK, gmail.Message{Id: "empty", Payload: &gmail.MessagePart{}}),
			)
		})

		It("should skip the message", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(paths).To(BeEmpty())
		})
	})

	When("listing fails", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusUnauthorized, `{"error":{"code":401,"message":"Invalid Credentials"}}`))
		})

		It("returns the error", func() {
			Expect(err).To(MatchError(ContainSubstring("listing messages")))
		})
	})
})

var _ = Describe("decodeBase64URL", func() {
	It("should accept padded input", func() {
		data, err := decodeBase64URL(base64.URLEncoding.EncodeToString([]byte("ab")))
		Expect(err).NotTo(HaveOccurred())
		Expect(data).To(Equal([]byte("ab")))
	})

	It("should accept unpadded input", func() {
		data, err := decodeBase64URL(base64.RawURLEncoding.EncodeToString([]byte("ab?>")))
		Expect(err).NotTo(HaveOccurred())
		Expect(data).To(Equal([]byte("ab?>")))
	})

	It("returns an error for invalid input", func() {
		_, err := decodeBase64URL("!!!")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("loadToken", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	write := func(content string) string {
		path := filepath.Join(dir, "token.json")
		Expect(os.WriteFile(path, []byte(content), 0600)).To(Succeed())
		return path
	}

	It("should read oauth2 tokens", func() {
		token, err := loadToken(write(`{"access_token":"ya29.a","refresh_token":"1//r","token_type":"Bearer"}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(token.AccessToken).To(Equal("ya29.a"))
		Expect(token.RefreshToken).To(Equal("1//r"))
	})

	It("should read authorized user files", func() {
		token, err := loadToken(write(`{"token":"ya29.b","refresh_token":"1//r","client_id":"x"}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(token.AccessToken).To(Equal("ya29.b"))
	})

	It("returns an error for an empty token", func() {
		_, err := loadToken(write(`{}`))
		Expect(err).To(HaveOccurred())
	})

	It("returns an error for a missing file", func() {
		_, err := loadToken(filepath.Join(dir, "missing.json"))
		Expect(err).To(MatchError(ContainSubstring("reading token")))
	})
})

type staticTokenSource struct {
	tokens []string
	calls  int
}

func (s *staticTokenSource) Token() (*oauth2.Token, error) {
	token := &oauth2.Token{AccessToken: s.tokens[s.calls]}
	s.calls++
	return token, nil
}

var _ = Describe("savingTokenSource", func() {
	It("should write a token only when it changes", func() {
		path := filepath.Join(GinkgoT().TempDir(), "token.json")
		ts := &savingTokenSource{
			base: &staticTokenSource{tokens: []string{"old", "new"}},
			path: path,
			last: "old",
		}

		_, err := ts.Token()
		Expect(err).NotTo(HaveOccurred())
		Expect(path).NotTo(BeAnExistingFile())

		_, err = ts.Token()
		Expect(err).NotTo(HaveOccurred())
		token, err := loadToken(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(token.AccessToken).To(Equal("new"))
	})
})
