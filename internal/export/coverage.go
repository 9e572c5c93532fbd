// Package export publishes mapping coverage snapshots to BigQuery.
package export

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/taxonomy-bridge/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const insertBatchSize = 500

// CoverageRow is one mirrored record in a snapshot.
type CoverageRow struct {
	SnapshotID      string              `bigquery:"snapshot_id"`
	ExportedAt      time.Time           `bigquery:"exported_at"`
	MarketplaceID   string              `bigquery:"marketplace_id"`
	MarketplaceName string              `bigquery:"marketplace_name"`
	Kind            string              `bigquery:"kind"`
	MpID            string              `bigquery:"mp_id"`
	ExternalID      string              `bigquery:"external_id"`
	Name            string              `bigquery:"name"`
	Mapped          bool                `bigquery:"mapped"`
	OwnIDs          bigquery.NullString `bigquery:"own_ids"`   // NULLABLE, comma separated
	OwnNames        bigquery.NullString `bigquery:"own_names"` // NULLABLE, "; " separated
}

// Reader is the part of the repository a snapshot reads.
type Reader interface {
	AllMarketplaces() []*domain.Marketplace
	AllMirrored(kind domain.Kind) []*domain.MpEntity
	OwnName(kind domain.Kind, id string) string
}

// MappingResolver returns the canonical ids a mirrored record is linked to.
type MappingResolver interface {
	MappedOwnIDs(kind domain.Kind, mpID string) []string
}

// Inserter streams rows into a table. *bigquery.Inserter satisfies it.
type Inserter interface {
	Put(ctx context.Context, src interface{}) error
}

// Stat counts mapped records of one kind in one marketplace.
type Stat struct {
	MarketplaceID   string      `json:"marketplace_id"`
	MarketplaceName string      `json:"marketplace_name"`
	Kind            domain.Kind `json:"kind"`
	Total           int         `json:"total"`
	Mapped          int         `json:"mapped"`
}

// Percent returns the mapped share, 0 for an empty set.
func (s Stat) Percent() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Mapped) * 100 / float64(s.Total)
}

// Result describes a finished export.
type Result struct {
	SnapshotID string `json:"snapshot_id"`
	Rows       int    `json:"rows"`
	Mapped     int    `json:"mapped"`
}

// Exporter builds coverage snapshots.
type Exporter struct {
	reader   Reader
	mappings MappingResolver
	inserter Inserter
	log      zerolog.Logger
	now      func() time.Time
}

// NewExporter creates an exporter. inserter may be nil when only Rows and
// Stats are used.
func NewExporter(reader Reader, mappings MappingResolver, inserter Inserter, log zerolog.Logger) *Exporter {
	return &Exporter{
		reader:   reader,
		mappings: mappings,
		inserter: inserter,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Rows builds one row per mirrored record, ordered by marketplace, kind and
// id. Records of unknown marketplaces are included with an empty name.
func (e *Exporter) Rows(snapshotID string) []*CoverageRow {
	names := make(map[string]string)
	for _, m := range e.reader.AllMarketplaces() {
		names[m.ID] = m.Name
	}
	at := e.now()

	var rows []*CoverageRow
	for _, kind := range domain.Kinds {
		for _, ent := range e.reader.AllMirrored(kind) {
			row := &CoverageRow{
				SnapshotID:      snapshotID,
				ExportedAt:      at,
				MarketplaceID:   ent.MarketplaceID,
				MarketplaceName: names[ent.MarketplaceID],
				Kind:            string(kind),
				MpID:            ent.ID,
				ExternalID:      ent.ExternalID,
				Name:            ent.Data.Name,
			}
			if own := e.mappings.MappedOwnIDs(kind, ent.ID); len(own) > 0 {
				ownNames := make([]string, 0, len(own))
				for _, id := range own {
					if n := e.reader.OwnName(kind, id); n != "" {
						ownNames = append(ownNames, n)
					}
				}
				row.Mapped = true
				row.OwnIDs = bigquery.NullString{StringVal: strings.Join(own, ","), Valid: true}
				row.OwnNames = bigquery.NullString{StringVal: strings.Join(ownNames, "; "), Valid: len(ownNames) > 0}
			}
			rows = append(rows, row)
		}
	}

	order := map[string]int{}
	for i, k := range domain.Kinds {
		order[string(k)] = i
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.MarketplaceID != b.MarketplaceID {
			return a.MarketplaceID < b.MarketplaceID
		}
		if a.Kind != b.Kind {
			return order[a.Kind] < order[b.Kind]
		}
		return a.MpID < b.MpID
	})
	return rows
}

// Stats aggregates rows per marketplace and kind.
func Stats(rows []*CoverageRow) []Stat {
	var out []Stat
	idx := make(map[string]int)
	for _, r := range rows {
		key := r.MarketplaceID + "\x00" + r.Kind
		i, ok := idx[key]
		if !ok {
			i = len(out)
			idx[key] = i
			out = append(out, Stat{MarketplaceID: r.MarketplaceID, MarketplaceName: r.MarketplaceName, Kind: domain.Kind(r.Kind)})
		}
		out[i].Total++
		if r.Mapped {
			out[i].Mapped++
		}
	}
	return out
}

// Stats returns the current coverage.
func (e *Exporter) Stats() []Stat {
	return Stats(e.Rows(""))
}

// Export writes a new snapshot in batches. Rows already sent stay in the
// table when a later batch fails.
func (e *Exporter) Export(ctx context.Context) (*Result, error) {
	if e.inserter == nil {
		return nil, fmt.Errorf("Export: no BigQuery table configured: %w", domain.ErrValidation)
	}
	res := &Result{SnapshotID: uuid.New().String()}
	rows := e.Rows(res.SnapshotID)

	for start := 0; start < len(rows); start += insertBatchSize {
		end := min(start+insertBatchSize, len(rows))
		if err := e.inserter.Put(ctx, rows[start:end]); err != nil {
			return res, fmt.Errorf("Export: inserting rows %d-%d: %w", start, end, err)
		}
		for _, r := range rows[start:end] {
			if r.Mapped {
				res.Mapped++
			}
		}
		res.Rows = end
	}

	e.log.Info().Str("snapshot_id", res.SnapshotID).Int("rows", res.Rows).Int("mapped", res.Mapped).Msg("Coverage snapshot exported")
	return res, nil
}
