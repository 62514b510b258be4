package mail

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var _ = Describe("Nylas", func() {
	var (
		server *ghttp.Server
		store  *mockStore
		nylas  *Nylas
		paths  []string
		err    error
	)

	const messagesPath = "/v3/grants/grant-1/messages"

	listHandler := func(query url.Values, body nylasMessagesResponse) http.HandlerFunc {
		return ghttp.CombineHandlers(
			ghttp.VerifyRequest(http.MethodGet, messagesPath),
			ghttp.VerifyHeaderKV("Authorization", "Bearer nyk_test"),
			ghttp.VerifyForm(query),
			ghttp.RespondWithJSONEncoded(http.StatusOK, body),
		)
	}

	downloadHandler := func(attachmentID, messageID, content string) http.HandlerFunc {
		return ghttp.CombineHandlers(
			ghttp.VerifyRequest(http.MethodGet, "/v3/grants/grant-1/attachments/"+attachmentID+"/download"),
			ghttp.VerifyForm(url.Values{"message_id": {messageID}}),
			ghttp.RespondWith(http.StatusOK, content),
		)
	}

	BeforeEach(func() {
		server = ghttp.NewServer()
		store = newMockStore()
		nylas = NewNylasWithClient(server.URL(), "nyk_test", "grant-1", store, Options{}, http.DefaultClient)
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		paths, err = nylas.Fetch(context.Background())
	})

	When("messages carry receipts and noise", func() {
		BeforeEach(func() {
			store.files["msg00002_old.pdf"] = []byte("cached")
			server.AppendHandlers(
				listHandler(url.Values{"search_query_native": {Query}}, nylasMessagesResponse{
					Data: []nylasMessage{
						{ID: "msg000011111", Attachments: []nylasAttachment{
							{ID: "att-1", Filename: "receipt.pdf", Size: 20000},
							{ID: "att-2", Filename: "logo.png", Size: 500},
							{ID: "att-3", Filename: "terms.txt", Size: 20000},
							{ID: "", Filename: "broken.pdf", Size: 20000},
						}},
						{ID: "msg000022222", Attachments: []nylasAttachment{
							{ID: "att-4", Filename: "old.pdf", Size: 30000},
						}},
						{ID: "msg3"},
					},
				}),
				downloadHandler("att-1", "msg000011111", "%PDF-1.4 receipt"),
			)
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should return downloaded and existing attachment paths", func() {
			Expect(paths).To(Equal([]string{
				"/attachments/msg00001_receipt.pdf",
				"/attachments/msg00002_old.pdf",
			}))
		})

		It("should only download what is missing", func() {
			Expect(server.ReceivedRequests()).To(HaveLen(2))
			Expect(store.files["msg00001_receipt.pdf"]).To(Equal([]byte("%PDF-1.4 receipt")))
			Expect(store.files["msg00002_old.pdf"]).To(Equal([]byte("cached")))
			Expect(store.names()).To(HaveLen(2))
		})
	})

	When("results span several pages", func() {
		BeforeEach(func() {
			server.AppendHandlers(
				listHandler(url.Values{"search_query_native": {Query}}, nylasMessagesResponse{
					Data:       []nylasMessage{{ID: "page1msg", Attachments: []nylasAttachment{{ID: "a1", Filename: "a.pdf"}}}},
					NextCursor: "cursor-2",
				}),
				listHandler(url.Values{"page_token": {"cursor-2"}}, nylasMessagesResponse{
					Data: []nylasMessage{{ID: "page2msg", Attachments: []nylasAttachment{{ID: "a2", Filename: "b.pdf"}}}},
				}),
				downloadHandler("a1", "page1msg", "one"),
				downloadHandler("a2", "page2msg", "two"),
			)
		})

		It("should follow the cursor", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(paths).To(Equal([]string{"/attachments/page1msg_a.pdf", "/attachments/page2msg_b.pdf"}))
		})
	})

	When("a download fails", func() {
		BeforeEach(func() {
			server.AppendHandlers(
				listHandler(url.Values{}, nylasMessagesResponse{
					Data: []nylasMessage{{ID: "msg1", Attachments: []nylasAttachment{
						{ID: "a1", Filename: "a.pdf"},
						{ID: "a2", Filename: "b.pdf"},
					}}},
				}),
				ghttp.RespondWith(http.StatusInternalServerError, "boom"),
				downloadHandler("a2", "msg1", "two"),
			)
		})

		It("should skip the attachment and carry on", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(paths).To(Equal([]string{"/attachments/msg1_b.pdf"}))
		})
	})

	When("the API rejects the key", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusUnauthorized, map[string]any{
				"error": map[string]string{"type": "unauthorized", "message": "Unauthorized"},
			}))
		})

		It("returns the API message", func() {
			Expect(err).To(MatchError(ContainSubstring("listing messages")))
			Expect(err).To(MatchError(ContainSubstring("status 401: Unauthorized")))
		})
	})

	When("saving fails", func() {
		BeforeEach(func() {
			store.saveErr = errors.New("disk full")
			server.AppendHandlers(
				listHandler(url.Values{}, nylasMessagesResponse{
					Data: []nylasMessage{{ID: "msg1", Attachments: []nylasAttachment{{ID: "a1", Filename: "a.pdf"}}}},
				}),
				downloadHandler("a1", "msg1", "one"),
			)
		})

		It("returns the error", func() {
			Expect(err).To(MatchError(ContainSubstring("disk full")))
		})
	})
})
