package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dvloznov/taxonomy-bridge/internal/config"
	"github.com/dvloznov/taxonomy-bridge/internal/domain"
	"github.com/dvloznov/taxonomy-bridge/internal/jobs"
	"github.com/rs/zerolog"
)

const shopCSV = "Characteristic ID,Characteristic,Option ID,Option,Category ID,Category\n" +
	"10,Color,100,Red,5,Shoes\n" +
	"10,Color,101,Blue,5,Shoes\n"

func testConfig(localRoot string) *config.Config {
	return &config.Config{
		Store:  config.StoreConfig{Backend: config.BackendMemory},
		Jobs:   config.JobsConfig{Workers: 1, Buffer: 4, MaxRetries: 1},
		Source: config.SourceConfig{LocalRoot: localRoot},
	}
}

func newTestApp(t *testing.T, localRoot string) (*App, *domain.Marketplace) {
	t.Helper()
	ctx := context.Background()
	a, err := New(ctx, testConfig(localRoot), zerolog.Nop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { a.Close(context.Background()) })

	if _, err := a.Bootstrap(ctx); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	if err := a.Load(ctx); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	mp, err := a.Repo.CreateMarketplace(ctx, &domain.Marketplace{Name: "Shop", IsActive: true})
	if err != nil {
		t.Fatalf("CreateMarketplace failed: %v", err)
	}
	return a, mp
}

func waitForJob(t *testing.T, a *App, id string) *jobs.ImportJob {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if job, err := a.Jobs.GetJob(context.Background(), id); err == nil && job.Done() {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Job %s did not finish", id)
	return nil
}

func TestApp_ImportJob(t *testing.T) {
	a, mp := newTestApp(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatal(err)
	}

	job := &jobs.ImportJob{MarketplaceID: mp.ID, Filename: "shop.csv", Data: []byte(shopCSV)}
	if err := a.Submit(ctx, job); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if job.MaxRetries != 1 {
		t.Errorf("MaxRetries = %d, want the configured 1", job.MaxRetries)
	}

	got := waitForJob(t, a, job.JobID)
	if got.Status != jobs.JobStatusCompleted {
		t.Fatalf("Status = %s (%s), want completed", got.Status, got.Error)
	}
	if got.Summary == nil || got.Summary.Created[domain.KindOption] != 2 {
		t.Errorf("Unexpected summary: %+v", got.Summary)
	}
	if n := len(a.Repo.AllMirrored(domain.KindCharacteristic)); n != 1 {
		t.Errorf("Mirrored characteristics = %d, want 1", n)
	}
}

func TestApp_HandleImportFromLocalPath(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "shop.csv"), []byte(shopCSV), 0o600); err != nil {
		t.Fatal(err)
	}
	a, mp := newTestApp(t, dir)

	job := &jobs.ImportJob{JobID: "j1", MarketplaceID: mp.ID, SourceURI: "shop.csv"}
	if err := a.HandleImport(context.Background(), job); err != nil {
		t.Fatalf("HandleImport failed: %v", err)
	}
	if job.Summary == nil || job.Summary.Sheet != "shop" {
		t.Errorf("Filename should come from the source URI, summary %+v", job.Summary)
	}
}

func TestApp_HandleImportErrors(t *testing.T) {
	a, mp := newTestApp(t, "")
	ctx := context.Background()

	if err := a.HandleImport(ctx, &jobs.ImportJob{MarketplaceID: mp.ID}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("Job without source = %v, want ErrValidation", err)
	}
	// Local paths are disabled without a root.
	if err := a.HandleImport(ctx, &jobs.ImportJob{MarketplaceID: mp.ID, SourceURI: "/etc/hosts"}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("Local path without root = %v, want ErrValidation", err)
	}
	err := a.HandleImport(ctx, &jobs.ImportJob{MarketplaceID: "mkt-999999", Filename: "a.csv", Data: []byte(shopCSV)})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Unknown marketplace = %v, want ErrNotFound", err)
	}
}
