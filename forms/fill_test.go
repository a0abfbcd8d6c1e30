// Copyright (c) 2023-2024, R.I. Pienaar and the Choria Project contributors
//
// SPDX-License-Identifier: Apache-2.0

package forms

import (
	"bytes"
	"context"
	"fmt"

	"github.com/AlecAivazis/survey/v2"
	"github.com/choria-io/formstate/upload"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"
)

// answerWith matches any AskOne call and stores answer in the response
func answerWith(mock *Mocksurveyor, answer any) *MocksurveyorAskOneCall {
	return mock.EXPECT().AskOne(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(p survey.Prompt, resp any, opts ...survey.AskOpt) error {
			switch ptr := resp.(type) {
			case *string:
				*ptr = answer.(string)
			case *[]string:
				*ptr = answer.([]string)
			case *bool:
				*ptr = answer.(bool)
			default:
				return fmt.Errorf("unexpected response type %T", resp)
			}
			return nil
		})
}

func fillForm() *Form {
	return &Form{
		Name:        "Permit",
		Description: "Permit {bold}request{/bold}",
		Sections: []Section{
			{
				SectionName: "Details",
				Fields: []Field{
					{Label: "Name", IsRequired: true},
					{Label: "Workers", ResponseType: NumberResponse},
					{Label: "Kind", ResponseType: SingleSelectResponse, Options: []string{"hot", "cold"}},
					{Label: "Flame Watch", Conditional: `input.Kind == "hot"`},
					{Label: "Tools", ResponseType: MultiSelectResponse, Options: []string{"saw", "torch"}},
				},
			},
			{
				SectionName: "Site",
				Fields: []Field{
					{Label: "Evidence", ResponseType: ProfileImageResponse},
					{
						Label:        "People",
						ResponseType: MatrixResponse,
						Fields:       []Field{{Label: "Name", IsRequired: true}},
					},
				},
			},
		},
	}
}

var _ = Describe("Fill", func() {
	var (
		ctrl     *gomock.Controller
		mock     *Mocksurveyor
		uploader *MockImageUploader
		s        *Session
		out      *bytes.Buffer
		files    map[string][]byte
		opts     []FillOption
	)

	BeforeEach(func() {
		ctrl = gomock.NewController(GinkgoT())
		mock = NewMocksurveyor(ctrl)
		uploader = NewMockImageUploader(ctrl)
		out = &bytes.Buffer{}
		files = map[string][]byte{
			"/tmp/a.jpg":   []byte("a"),
			"/tmp/b c.jpg": []byte("bc"),
		}

		var err error
		s, err = NewSession(fillForm(), WithUploader(uploader))
		Expect(err).ToNot(HaveOccurred())
		DeferCleanup(s.Close)

		opts = []FillOption{
			withSurveyor(mock),
			withIsTerminal(func() bool { return true }),
			withOutput(out),
			withReadFile(func(p string) ([]byte, error) {
				d, ok := files[p]
				if !ok {
					return nil, fmt.Errorf("open %s: no such file", p)
				}
				return d, nil
			}),
		}
	})

	It("Should require a terminal", func() {
		err := Fill(context.Background(), s, withIsTerminal(func() bool { return false }))
		Expect(err).To(MatchError("can only fill forms on a valid terminal"))
	})

	It("Should ask every visible field and store the answers", func() {
		uploader.EXPECT().Upload(gomock.Any(), upload.SafetyKind, gomock.Any()).DoAndReturn(uploadByName).Times(2)

		gomock.InOrder(
			answerWith(mock, "bob"),
			answerWith(mock, "3"),
			answerWith(mock, "cold"),
			answerWith(mock, []string{"saw"}),
			answerWith(mock, `/tmp/a.jpg "/tmp/b c.jpg" /tmp/missing.jpg`),
			answerWith(mock, false),
			answerWith(mock, true),
			answerWith(mock, "ann"),
			answerWith(mock, true),
			answerWith(mock, "joe"),
			answerWith(mock, false),
		)

		Expect(Fill(context.Background(), s, opts...)).To(Succeed())

		store := s.Store()

		v, _ := store.GetAnswer("Details", "Name")
		Expect(v).To(Equal("bob"))
		v, _ = store.GetAnswer("Details", "Workers")
		Expect(v).To(Equal(float64(3)))
		v, _ = store.GetAnswer("Details", "Kind")
		Expect(v).To(Equal("cold"))
		_, ok := store.GetAnswer("Details", "Flame Watch")
		Expect(ok).To(BeFalse())
		v, _ = store.GetAnswer("Details", "Tools")
		Expect(v).To(Equal([]string{"saw"}))

		v, _ = store.GetAnswer("Site", "Evidence")
		Expect(v).To(Equal([]string{"https://example.net/a.jpg", "https://example.net/b c.jpg"}))

		Expect(store.Rows("Site", "People")).To(Equal(2))
		Expect(store.SectionDocument("Site")["People"]).To(Equal([]any{
			map[string]any{"Name": "ann"},
			map[string]any{"Name": "joe"},
		}))

		Expect(out.String()).To(ContainSubstring("open /tmp/missing.jpg: no such file"))
		Expect(out.String()).To(ContainSubstring("Uploaded https://example.net/a.jpg"))
	})

	It("Should ask conditional fields once they become visible", func() {
		gomock.InOrder(
			answerWith(mock, "bob"),
			answerWith(mock, ""),
			answerWith(mock, "hot"),
			answerWith(mock, "Sam"),
			answerWith(mock, []string{}),
			answerWith(mock, ""),
			answerWith(mock, false),
		)

		Expect(Fill(context.Background(), s, opts...)).To(Succeed())

		v, _ := s.Store().GetAnswer("Details", "Flame Watch")
		Expect(v).To(Equal("Sam"))
		_, ok := s.Store().GetAnswer("Details", "Workers")
		Expect(ok).To(BeFalse())
	})

	It("Should re-ask rejected answers", func() {
		gomock.InOrder(
			answerWith(mock, "bob"),
			answerWith(mock, "many"),
			answerWith(mock, "4"),
			answerWith(mock, "cold"),
			answerWith(mock, []string{}),
			answerWith(mock, ""),
			answerWith(mock, false),
		)

		Expect(Fill(context.Background(), s, opts...)).To(Succeed())
		Expect(out.String()).To(ContainSubstring("invalid number"))

		v, _ := s.Store().GetAnswer("Details", "Workers")
		Expect(v).To(Equal(float64(4)))
	})

	It("Should return validation failures of the finished form", func() {
		gomock.InOrder(
			answerWith(mock, "bob"),
			answerWith(mock, ""),
			answerWith(mock, "cold"),
			answerWith(mock, []string{}),
			answerWith(mock, ""),
			answerWith(mock, true),
			answerWith(mock, ""),
			answerWith(mock, false),
		)

		err := Fill(context.Background(), s, opts...)
		Expect(err).To(MatchError(ErrRequired))
		Expect(s.Errors()).To(HaveKey("Site/People"))
	})

	It("Should stop on prompt errors", func() {
		mock.EXPECT().AskOne(gomock.Any(), gomock.Any(), gomock.Any()).Return(fmt.Errorf("interrupt"))

		Expect(Fill(context.Background(), s, opts...)).To(MatchError("interrupt"))
	})

	It("Should stop when the context is cancelled", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		Expect(Fill(ctx, s, opts...)).To(MatchError(context.Canceled))
	})
})
