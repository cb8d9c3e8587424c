package cache_test

import (
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/saiaslabs/saias/pkg/cache"
	"github.com/saiaslabs/saias/pkg/chat"
)

var _ = Describe("Store", func() {
	var (
		store *cache.Store
		ctx   context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		store, err = cache.Open(":memory:")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if store != nil {
			store.Close()
		}
	})

	Describe("Open", func() {
		It("creates an in-memory store", func() {
			Expect(store).NotTo(BeNil())
		})

		It("creates the database file on disk", func() {
			tmpDir := GinkgoT().TempDir()
			dbPath := filepath.Join(tmpDir, "cache.db")

			s, err := cache.Open(dbPath)
			Expect(err).NotTo(HaveOccurred())
			defer s.Close()

			// The file only materializes once something is written.
			Expect(s.Save(ctx, nil)).To(Succeed())
			_, err = os.Stat(dbPath)
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("Save and Load", func() {
		It("round-trips a transcript", func() {
			messages := []*chat.Message{
				{
					ID:        "m1",
					Role:      chat.RoleUser,
					Content:   "hello",
					CreatedAt: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
				},
				{
					ID:       "m2",
					Role:     chat.RoleAssistant,
					Content:  "hi there",
					ServerID: "41",
				},
			}

			Expect(store.Save(ctx, messages)).To(Succeed())

			loaded, err := store.Load(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(HaveLen(2))
			Expect(loaded[0].ID).To(Equal("m1"))
			Expect(loaded[0].Content).To(Equal("hello"))
			Expect(loaded[1].Role).To(Equal(chat.RoleAssistant))
			Expect(loaded[1].ServerID).To(Equal("41"))
		})

		It("overwrites the previous snapshot entirely", func() {
			first := []*chat.Message{{ID: "m1", Role: chat.RoleUser, Content: "first"}}
			second := []*chat.Message{{ID: "m2", Role: chat.RoleUser, Content: "second"}}

			Expect(store.Save(ctx, first)).To(Succeed())
			Expect(store.Save(ctx, second)).To(Succeed())

			loaded, err := store.Load(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(HaveLen(1))
			Expect(loaded[0].Content).To(Equal("second"))
		})

		It("returns an empty list before anything is cached", func() {
			loaded, err := store.Load(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(BeEmpty())
		})

		It("treats a saved nil transcript as empty", func() {
			Expect(store.Save(ctx, nil)).To(Succeed())

			loaded, err := store.Load(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(BeEmpty())
		})
	})

	Describe("Clear", func() {
		It("removes the cached transcript", func() {
			messages := []*chat.Message{{ID: "m1", Role: chat.RoleUser, Content: "wipe me"}}
			Expect(store.Save(ctx, messages)).To(Succeed())

			Expect(store.Clear(ctx)).To(Succeed())

			loaded, err := store.Load(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(BeEmpty())
		})

		It("succeeds on an empty store", func() {
			Expect(store.Clear(ctx)).To(Succeed())
		})
	})
})
