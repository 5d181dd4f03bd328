// Package sde refreshes static reference data from Fuzzwork CSV dumps.
package sde

import (
	"compress/bzip2"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aflyhorse/kmstat/internal/adapters/repository"
	"github.com/aflyhorse/kmstat/internal/domain/model"
	"github.com/aflyhorse/kmstat/pkg/logger"
	"github.com/aflyhorse/kmstat/pkg/metrics"
)

const (
	defaultEndpoint = "https://www.fuzzwork.co.uk/dump/latest"

	systemsDump = "mapSolarSystems.csv.bz2"
	typesDump   = "invTypes.csv.bz2"
)

// Result reports what a refresh changed.
type Result struct {
	SolarSystems    int
	NewSolarSystems int
	ItemTypes       int
	NewItemTypes    int
}

// Refresher downloads and loads SDE dumps into the store.
type Refresher struct {
	endpoint   string
	httpClient *http.Client
	store      repository.Store
	log        logger.Logger
}

// NewRefresher creates a refresher writing into store.
func NewRefresher(store repository.Store, opts ...Option) *Refresher {
	r := &Refresher{
		endpoint:   defaultEndpoint,
		httpClient: &http.Client{Timeout: 10 * time.Minute},
		store:      store,
		log:        logger.Named("sde"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Refresh downloads both dumps concurrently, upserts their rows and records
// the refresh date.
func (r *Refresher) Refresh(ctx context.Context) (Result, error) {
	var res Result
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		systems, err := r.fetchSystems(gctx)
		if err != nil {
			return err
		}
		n, err := r.store.UpsertSolarSystems(gctx, systems)
		if err != nil {
			return fmt.Errorf("storing solar systems: %w", err)
		}
		res.SolarSystems = len(systems)
		res.NewSolarSystems = n
		return nil
	})
	g.Go(func() error {
		types, err := r.fetchTypes(gctx)
		if err != nil {
			return err
		}
		n, err := r.store.UpsertItemTypes(gctx, types)
		if err != nil {
			return fmt.Errorf("storing item types: %w", err)
		}
		res.ItemTypes = len(types)
		res.NewItemTypes = n
		return nil
	})
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	if err := r.store.SetStateDate(ctx, model.StateSDEVersion, time.Now().UTC()); err != nil {
		return Result{}, fmt.Errorf("recording refresh date: %w", err)
	}
	r.log.Info(ctx, "reference data refreshed",
		logger.Int("solar_systems", res.SolarSystems),
		logger.Int("new_solar_systems", res.NewSolarSystems),
		logger.Int("item_types", res.ItemTypes),
		logger.Int("new_item_types", res.NewItemTypes))
	return res, nil
}

func (r *Refresher) fetchSystems(ctx context.Context) ([]model.SolarSystem, error) {
	var systems []model.SolarSystem
	err := r.walkCSV(ctx, systemsDump, "solarSystemID", "solarSystemName",
		func(id int64, name string) {
			systems = append(systems, model.SolarSystem{ID: id, Name: name})
		})
	if err != nil {
		return nil, err
	}
	return systems, nil
}

func (r *Refresher) fetchTypes(ctx context.Context) ([]model.ItemType, error) {
	var types []model.ItemType
	err := r.walkCSV(ctx, typesDump, "typeID", "typeName",
		func(id int64, name string) {
			types = append(types, model.ItemType{ID: id, Name: name})
		})
	if err != nil {
		return nil, err
	}
	return types, nil
}

// walkCSV streams one bz2 dump and feeds the id/name column pair to fn.
func (r *Refresher) walkCSV(ctx context.Context, dump, idCol, nameCol string, fn func(int64, string)) error {
	url := r.endpoint + "/" + dump
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		metrics.RecordClientRequest("fuzzwork", "error")
		return fmt.Errorf("downloading %s: %w", dump, err)
	}
	defer resp.Body.Close()
	metrics.RecordClientRequest("fuzzwork", strconv.Itoa(resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("downloading %s: unexpected status %d", dump, resp.StatusCode)
	}

	cr := csv.NewReader(bzip2.NewReader(resp.Body))
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return fmt.Errorf("reading %s header: %w", dump, err)
	}
	idIdx, nameIdx := -1, -1
	for i, col := range header {
		switch col {
		case idCol:
			idIdx = i
		case nameCol:
			nameIdx = i
		}
	}
	if idIdx < 0 || nameIdx < 0 {
		return fmt.Errorf("%s: %w (%s, %s)", dump, ErrMissingColumn, idCol, nameCol)
	}

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading %s: %w", dump, err)
		}
		if len(rec) <= idIdx || len(rec) <= nameIdx {
			continue
		}
		id, err := strconv.ParseInt(rec[idIdx], 10, 64)
		if err != nil {
			continue
		}
		fn(id, rec[nameIdx])
	}
}
