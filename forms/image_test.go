// Copyright (c) 2023-2024, R.I. Pienaar and the Choria Project contributors
//
// SPDX-License-Identifier: Apache-2.0

package forms

import (
	"context"
	"errors"
	"time"

	"github.com/choria-io/formstate/answers"
	"github.com/choria-io/formstate/upload"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"
)

func imageForm() *Form {
	return &Form{
		Name: "Audit",
		Sections: []Section{
			{
				SectionName: "Registration",
				Fields: []Field{
					{Label: "Photo", ResponseType: ProfileImageResponse},
					{
						Label:        "Persons",
						ResponseType: MatrixResponse,
						Fields:       []Field{{Label: "Photo", ResponseType: ProfileImageResponse}},
					},
				},
			},
			{
				SectionName: "Site",
				Fields: []Field{
					{Label: "Evidence", ResponseType: ProfileImageResponse},
					{Label: "Badge", ResponseType: ProfileImageResponse, MaxImages: 2},
					{
						Label:        "Hazards",
						ResponseType: MatrixResponse,
						Fields:       []Field{{Label: "Pictures", ResponseType: ProfileImageResponse}},
					},
				},
			},
		},
	}
}

func imageFile(name string, size int) upload.File {
	return upload.File{Name: name, Data: make([]byte, size)}
}

// uploadByName answers every upload with a url derived from the file name
func uploadByName(_ context.Context, _ upload.Kind, f upload.File) (string, error) {
	return "https://example.net/" + f.Name, nil
}

var _ = Describe("ImageController", func() {
	var (
		ctrl     *gomock.Controller
		uploader *MockImageUploader
		opts     []Option
	)

	BeforeEach(func() {
		ctrl = gomock.NewController(GinkgoT())
		uploader = NewMockImageUploader(ctrl)
		opts = []Option{WithUploader(uploader)}
	})

	newSession := func(extra ...Option) *Session {
		GinkgoHelper()

		s, err := NewSession(imageForm(), append(opts, extra...)...)
		Expect(err).ToNot(HaveOccurred())
		DeferCleanup(s.Close)

		return s
	}

	It("Should require an uploader", func() {
		s, err := NewSession(imageForm())
		Expect(err).ToNot(HaveOccurred())
		defer s.Close()

		c := mustMount[*ImageController](s, "Site", "Evidence")
		_, err = c.AddFiles(context.Background(), imageFile("a.jpg", 1))
		Expect(err).To(MatchError(ErrNoUploader))
	})

	It("Should apply image limits", func() {
		s := newSession(WithMaxImages(3))

		Expect(mustMount[*ImageController](s, "Registration", "Photo").MaxImages()).To(Equal(1))
		Expect(mustMount[*ImageController](s, "Site", "Evidence").MaxImages()).To(Equal(3))
		Expect(mustMount[*ImageController](s, "Site", "Badge").MaxImages()).To(Equal(2))
	})

	Describe("identity section", func() {
		It("Should hold a single image and reject further selections", func() {
			s := newSession()
			c := mustMount[*ImageController](s, "Registration", "Photo")

			uploader.EXPECT().Upload(gomock.Any(), upload.PersonKind, imageFile("me.jpg", 10)).Return("https://example.net/me.jpg", nil).Times(1)

			res, err := c.AddFiles(context.Background(), imageFile("me.jpg", 10))
			Expect(err).ToNot(HaveOccurred())
			Expect(res.Committed).To(BeTrue())
			Expect(res.URLs).To(Equal([]string{"https://example.net/me.jpg"}))

			_, err = c.AddFiles(context.Background(), imageFile("again.jpg", 10))
			Expect(err).To(MatchError(ErrImageLimit))

			v, ok := s.Store().GetAnswer("Registration", "Photo")
			Expect(ok).To(BeTrue())
			Expect(v).To(Equal("https://example.net/me.jpg"))
			Expect(c.Validate()).To(Succeed())
		})

		It("Should upload only as many files as there are slots", func() {
			s := newSession()
			c := mustMount[*ImageController](s, "Registration", "Photo")

			uploader.EXPECT().Upload(gomock.Any(), upload.PersonKind, gomock.Any()).DoAndReturn(uploadByName).Times(1)

			res, err := c.AddFiles(context.Background(), imageFile("a.jpg", 1), imageFile("b.jpg", 1))
			Expect(err).ToNot(HaveOccurred())
			Expect(res.URLs).To(Equal([]string{"https://example.net/a.jpg"}))
			Expect(res.Errors).To(HaveLen(1))
			Expect(res.Errors[0].Name).To(Equal("b.jpg"))
			Expect(res.Errors[0]).To(MatchError(ErrImageLimit))
		})

		It("Should replace the identity image after a removal", func() {
			s := newSession()
			c := mustMount[*ImageController](s, "Registration", "Photo")

			uploader.EXPECT().Upload(gomock.Any(), upload.PersonKind, gomock.Any()).DoAndReturn(uploadByName).Times(2)

			_, err := c.AddFiles(context.Background(), imageFile("a.jpg", 1))
			Expect(err).ToNot(HaveOccurred())

			Expect(c.Remove(0)).To(Succeed())
			Expect(c.Staged()).To(BeEmpty())

			_, err = c.AddFiles(context.Background(), imageFile("b.jpg", 1))
			Expect(err).ToNot(HaveOccurred())

			v, _ := s.Store().GetAnswer("Registration", "Photo")
			Expect(v).To(Equal("https://example.net/b.jpg"))
		})

		It("Should limit and upload matrix images as identity photos", func() {
			s := newSession()
			m := mustMount[*MatrixController](s, "Registration", "Persons")
			ctl, err := m.Child(0, "Photo")
			Expect(err).ToNot(HaveOccurred())
			c := ctl.(*ImageController)

			Expect(c.MaxImages()).To(Equal(1))

			uploader.EXPECT().Upload(gomock.Any(), upload.PersonKind, gomock.Any()).DoAndReturn(uploadByName).Times(1)

			res, err := c.AddFiles(context.Background(), imageFile("a.jpg", 1), imageFile("b.jpg", 1))
			Expect(err).ToNot(HaveOccurred())
			Expect(res.URLs).To(Equal([]string{"https://example.net/a.jpg"}))
			Expect(res.Errors).To(HaveLen(1))
			Expect(res.Errors[0]).To(MatchError(ErrImageLimit))

			v, _ := s.Store().GetMatrixAnswer("Registration", "Persons", "Photo")
			Expect(v).To(Equal([]string{"https://example.net/a.jpg"}))
		})

		It("Should store every staged image when more than one identity image is allowed", func() {
			s := newSession(WithIdentitySection("Registration", 2))
			c := mustMount[*ImageController](s, "Registration", "Photo")

			uploader.EXPECT().Upload(gomock.Any(), upload.PersonKind, gomock.Any()).DoAndReturn(uploadByName).Times(2)

			_, err := c.AddFiles(context.Background(), imageFile("a.jpg", 1), imageFile("b.jpg", 1))
			Expect(err).ToNot(HaveOccurred())

			v, _ := s.Store().GetAnswer("Registration", "Photo")
			Expect(v).To(Equal([]string{"https://example.net/a.jpg", "https://example.net/b.jpg"}))
			Expect(c.Staged()).To(Equal(v))
		})
	})

	Describe("other sections", func() {
		It("Should append batches up to the limit", func() {
			s := newSession()
			c := mustMount[*ImageController](s, "Site", "Evidence")

			uploader.EXPECT().Upload(gomock.Any(), upload.SafetyKind, gomock.Any()).DoAndReturn(uploadByName).Times(4)

			res, err := c.AddFiles(context.Background(), imageFile("1.jpg", 1), imageFile("2.jpg", 1), imageFile("3.jpg", 1))
			Expect(err).ToNot(HaveOccurred())
			Expect(res.URLs).To(Equal([]string{"https://example.net/1.jpg", "https://example.net/2.jpg", "https://example.net/3.jpg"}))

			res, err = c.AddFiles(context.Background(), imageFile("4.jpg", 1), imageFile("5.jpg", 1))
			Expect(err).ToNot(HaveOccurred())
			Expect(res.URLs).To(Equal([]string{"https://example.net/4.jpg"}))
			Expect(res.Errors).To(HaveLen(1))

			v, _ := s.Store().GetAnswer("Site", "Evidence")
			Expect(v).To(Equal([]string{
				"https://example.net/1.jpg",
				"https://example.net/2.jpg",
				"https://example.net/3.jpg",
				"https://example.net/4.jpg",
			}))
			Expect(c.Staged()).To(HaveLen(4))

			_, err = c.AddFiles(context.Background(), imageFile("6.jpg", 1))
			Expect(err).To(MatchError(ErrImageLimit))
		})

		It("Should report failed files and commit the rest", func() {
			s := newSession(WithMaxImageBytes(10))
			c := mustMount[*ImageController](s, "Site", "Evidence")

			uploader.EXPECT().Upload(gomock.Any(), upload.SafetyKind, gomock.Any()).DoAndReturn(func(ctx context.Context, k upload.Kind, f upload.File) (string, error) {
				if f.Name == "broken.jpg" {
					return "", upload.ErrUploadFailed
				}
				return uploadByName(ctx, k, f)
			}).Times(2)

			res, err := c.AddFiles(context.Background(), imageFile("big.jpg", 20), imageFile("broken.jpg", 5), imageFile("ok.jpg", 10))
			Expect(err).ToNot(HaveOccurred())
			Expect(res.URLs).To(Equal([]string{"https://example.net/ok.jpg"}))
			Expect(res.Errors).To(HaveLen(2))

			Expect(res.Errors[0].Name).To(Equal("big.jpg"))
			Expect(res.Errors[0]).To(MatchError(ErrFileTooLarge))
			Expect(res.Errors[0]).To(MatchError(ContainSubstring("20 bytes exceeds the 10 byte limit")))
			Expect(res.Errors[1].Name).To(Equal("broken.jpg"))
			Expect(res.Errors[1]).To(MatchError(upload.ErrUploadFailed))

			v, _ := s.Store().GetAnswer("Site", "Evidence")
			Expect(v).To(Equal([]string{"https://example.net/ok.jpg"}))
			Expect(c.Staged()).To(Equal([]string{"https://example.net/ok.jpg"}))
		})

		It("Should not commit when every file fails", func() {
			s := newSession(WithMaxImageBytes(1))
			c := mustMount[*ImageController](s, "Site", "Evidence")

			res, err := c.AddFiles(context.Background(), imageFile("big.jpg", 2))
			Expect(err).ToNot(HaveOccurred())
			Expect(res.Committed).To(BeFalse())
			Expect(c.Staged()).To(BeEmpty())

			_, ok := s.Store().GetAnswer("Site", "Evidence")
			Expect(ok).To(BeFalse())
		})

		It("Should upload the compressed file", func() {
			compressor := NewMockCompressor(ctrl)
			s := newSession(WithCompressor(compressor), WithMaxImageBytes(10))
			c := mustMount[*ImageController](s, "Site", "Evidence")

			compressor.EXPECT().Compress(gomock.Any(), imageFile("raw.png", 50)).Return(imageFile("raw.jpg", 8), nil)
			uploader.EXPECT().Upload(gomock.Any(), upload.SafetyKind, imageFile("raw.jpg", 8)).DoAndReturn(uploadByName)

			res, err := c.AddFiles(context.Background(), imageFile("raw.png", 50))
			Expect(err).ToNot(HaveOccurred())
			Expect(res.URLs).To(Equal([]string{"https://example.net/raw.jpg"}))
		})

		It("Should report compression failures per file", func() {
			s := newSession(WithCompressor(CompressorFunc(func(_ context.Context, f upload.File) (upload.File, error) {
				return upload.File{}, errors.New("cannot decode image " + f.Name)
			})))
			c := mustMount[*ImageController](s, "Site", "Evidence")

			res, err := c.AddFiles(context.Background(), imageFile("x.txt", 1))
			Expect(err).ToNot(HaveOccurred())
			Expect(res.Errors).To(HaveLen(1))
			Expect(res.Errors[0]).To(MatchError("x.txt: cannot decode image x.txt"))
		})

		It("Should seed the staged list from saved answers", func() {
			saved := []answers.Section{{
				SectionName: "Site",
				Responses:   []answers.Response{{Question: "Evidence", Answer: []string{"a", "b", "c", "d"}}},
			}}
			s := newSession(WithAnswers(saved))
			c := mustMount[*ImageController](s, "Site", "Evidence")

			Expect(c.Staged()).To(Equal([]string{"a", "b", "c", "d"}))
			_, err := c.AddFiles(context.Background(), imageFile("e.jpg", 1))
			Expect(err).To(MatchError(ErrImageLimit))

			Expect(c.Remove(0)).To(Succeed())
			Expect(c.Remove(7)).To(HaveOccurred())
			Expect(c.Staged()).To(Equal([]string{"b", "c", "d"}))

			v, _ := s.Store().GetAnswer("Site", "Evidence")
			Expect(v).To(Equal([]string{"a", "b", "c", "d"}))
		})

		It("Should replace the row list inside a matrix", func() {
			s := newSession()
			m := mustMount[*MatrixController](s, "Site", "Hazards")
			ctl, err := m.Child(0, "Pictures")
			Expect(err).ToNot(HaveOccurred())
			c := ctl.(*ImageController)

			uploader.EXPECT().Upload(gomock.Any(), upload.SafetyKind, gomock.Any()).DoAndReturn(uploadByName).Times(2)

			_, err = c.AddFiles(context.Background(), imageFile("1.jpg", 1))
			Expect(err).ToNot(HaveOccurred())
			_, err = c.AddFiles(context.Background(), imageFile("2.jpg", 1))
			Expect(err).ToNot(HaveOccurred())

			v, _ := s.Store().GetMatrixAnswer("Site", "Hazards", "Pictures")
			Expect(v).To(Equal([]string{"https://example.net/1.jpg", "https://example.net/2.jpg"}))
		})
	})

	Describe("late writes", func() {
		var (
			started chan struct{}
			release chan struct{}
		)

		BeforeEach(func() {
			started = make(chan struct{})
			release = make(chan struct{})

			uploader.EXPECT().Upload(gomock.Any(), upload.SafetyKind, gomock.Any()).DoAndReturn(func(ctx context.Context, _ upload.Kind, f upload.File) (string, error) {
				close(started)

				select {
				case <-ctx.Done():
					return "", ctx.Err()
				case <-release:
					return "https://example.net/" + f.Name, nil
				}
			})
		})

		addInBackground := func(c *ImageController) (chan *UploadResult, chan error) {
			results := make(chan *UploadResult, 1)
			errs := make(chan error, 1)

			go func() {
				res, err := c.AddFiles(context.Background(), imageFile("late.jpg", 1))
				results <- res
				errs <- err
			}()

			Eventually(started).Should(BeClosed())

			return results, errs
		}

		It("Should discard uploads finishing after unmount by default", func() {
			s := newSession()
			c := mustMount[*ImageController](s, "Site", "Evidence")

			results, errs := addInBackground(c)
			s.Unmount(c)

			Eventually(errs).Should(Receive(MatchError(ErrDetached)))
			res := <-results
			Expect(res.Committed).To(BeFalse())
			Expect(res.Errors).To(HaveLen(1))
			Expect(res.Errors[0]).To(MatchError(context.Canceled))

			_, ok := s.Store().GetAnswer("Site", "Evidence")
			Expect(ok).To(BeFalse())

			_, err := c.AddFiles(context.Background(), imageFile("more.jpg", 1))
			Expect(err).To(MatchError(ErrDetached))
		})

		It("Should apply uploads finishing after unmount when configured", func() {
			s := newSession(WithLateWrites(ApplyLateWrites))
			c := mustMount[*ImageController](s, "Site", "Evidence")

			results, errs := addInBackground(c)
			s.Unmount(c)

			Consistently(errs, 50*time.Millisecond).ShouldNot(Receive())
			close(release)

			Eventually(errs).Should(Receive(BeNil()))
			res := <-results
			Expect(res.Committed).To(BeTrue())

			v, _ := s.Store().GetAnswer("Site", "Evidence")
			Expect(v).To(Equal([]string{"https://example.net/late.jpg"}))
		})
	})

	It("Should reject invalid session options", func() {
		_, err := NewSession(imageForm(), WithLateWrites("sometimes"))
		Expect(err).To(MatchError(`invalid late writes mode "sometimes"`))

		_, err = NewSession(imageForm(), WithMaxImages(0))
		Expect(err).To(HaveOccurred())

		_, err = NewSession(imageForm(), WithUploadConcurrency(0))
		Expect(err).To(HaveOccurred())

		_, err = NewSession(imageForm(), WithIdentitySection("Registration", 0))
		Expect(err).To(HaveOccurred())
	})
})
