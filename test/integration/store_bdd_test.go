//go:build integration

package integration

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/modeshift/modeshift/internal/config"
	"github.com/modeshift/modeshift/internal/domain"
)

var _ = Describe("Config Store", func() {
	var (
		tmpDir     string
		configPath string
		store      *config.Store
	)

	newStore := func() *config.Store {
		s := config.NewStoreWithPath(configPath, zap.NewNop())
		s.SetDebounce(30 * time.Millisecond)
		return s
	}

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "modeshift-integration-*")
		Expect(err).NotTo(HaveOccurred())

		configPath = filepath.Join(tmpDir, "config.json")
		store = newStore()
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	Describe("First run", func() {
		Context("when no configuration exists", func() {
			It("should create and persist the defaults", func() {
				Expect(store.Load()).To(Succeed())

				cfg := store.Config()
				Expect(cfg.Modes).NotTo(BeEmpty())
				Expect(cfg.GlobalAllowList).NotTo(BeEmpty())

				// Defaults are already durable; a fresh store sees them.
				_, err := os.Stat(configPath)
				Expect(err).NotTo(HaveOccurred())

				second := newStore()
				Expect(second.Load()).To(Succeed())
				Expect(second.Config()).To(Equal(cfg))
			})
		})
	})

	Describe("Corruption recovery", func() {
		Context("when the primary document is corrupt", func() {
			It("should recover from the backup and re-persist the primary", func() {
				Expect(store.Load()).To(Succeed())
				Expect(store.AddMode(domain.Mode{ID: "m1", Name: "Writing"})).To(Succeed())
				Expect(store.Flush()).To(Succeed())

				// One more durable write so the backup holds the m1 state.
				Expect(store.SetBehavior(true, false, 60)).To(Succeed())
				Expect(store.Flush()).To(Succeed())

				Expect(os.WriteFile(configPath, []byte("{{{ not json"), 0600)).To(Succeed())

				recovered := newStore()
				Expect(recovered.Load()).To(Succeed())
				cfg := recovered.Config()
				Expect(cfg.ModeByID("m1")).NotTo(BeNil())

				// The primary was rewritten from the backup.
				data, err := os.ReadFile(configPath)
				Expect(err).NotTo(HaveOccurred())
				Expect(string(data)).To(ContainSubstring("m1"))
			})
		})

		Context("when primary and backup are both corrupt", func() {
			It("should fall back to defaults without failing", func() {
				Expect(os.MkdirAll(tmpDir, 0700)).To(Succeed())
				Expect(os.WriteFile(configPath, []byte("garbage"), 0600)).To(Succeed())
				Expect(os.WriteFile(store.BackupPath(), []byte("also garbage"), 0600)).To(Succeed())

				Expect(store.Load()).To(Succeed())
				Expect(store.Config().Modes).NotTo(BeEmpty())
			})
		})
	})

	Describe("Debounced persistence", func() {
		Context("when mutations arrive in a burst", func() {
			It("should coalesce them into a single durable state", func() {
				Expect(store.Load()).To(Succeed())
				baseline, err := os.ReadFile(configPath)
				Expect(err).NotTo(HaveOccurred())

				Expect(store.AddMode(domain.Mode{ID: "a", Name: "A"})).To(Succeed())
				Expect(store.AddMode(domain.Mode{ID: "b", Name: "B"})).To(Succeed())
				Expect(store.AddMode(domain.Mode{ID: "c", Name: "C"})).To(Succeed())

				// Inside the window the file still holds the old state.
				during, err := os.ReadFile(configPath)
				Expect(err).NotTo(HaveOccurred())
				Expect(during).To(Equal(baseline))

				Eventually(func() bool {
					fresh := newStore()
					if err := fresh.Load(); err != nil {
						return false
					}
					cfg := fresh.Config()
					return cfg.ModeByID("a") != nil &&
						cfg.ModeByID("b") != nil &&
						cfg.ModeByID("c") != nil
				}, 2*time.Second, 10*time.Millisecond).Should(BeTrue())
			})
		})

		Context("when Flush is called inside the window", func() {
			It("should persist immediately", func() {
				Expect(store.Load()).To(Succeed())
				Expect(store.AddMode(domain.Mode{ID: "urgent", Name: "Urgent"})).To(Succeed())
				Expect(store.Flush()).To(Succeed())

				fresh := newStore()
				Expect(fresh.Load()).To(Succeed())
				cfg := fresh.Config()
				Expect(cfg.ModeByID("urgent")).NotTo(BeNil())
			})
		})
	})

	Describe("Subscriptions", func() {
		Context("when a mutation is applied", func() {
			It("should notify subscribers synchronously with the new snapshot", func() {
				Expect(store.Load()).To(Succeed())

				var seen []int
				store.Subscribe(func(cfg domain.Config) {
					seen = append(seen, len(cfg.Modes))
				})

				before := len(store.Config().Modes)
				Expect(store.AddMode(domain.Mode{ID: "x", Name: "X"})).To(Succeed())
				Expect(seen).To(Equal([]int{before + 1}))
			})
		})
	})
})
