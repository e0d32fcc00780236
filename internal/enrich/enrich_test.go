package enrich

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"jobpipe/internal/model"
)

type fakeGeocoder struct {
	calls int
	coords Coordinates
	err   error
}

func (f *fakeGeocoder) Geocode(ctx context.Context, query string) (Coordinates, error) {
	f.calls++
	return f.coords, f.err
}

func TestEnrichSkipsRemoteJobs(t *testing.T) {
	geocoder := &fakeGeocoder{}
	e := NewEnricher(geocoder, 10, 100, time.Second)

	job := model.Job{IsRemote: true}
	e.Enrich(context.Background(), &job)

	assert.Nil(t, job.Latitude)
	assert.Equal(t, 0, geocoder.calls)
}

func TestEnrichCachesByLocation(t *testing.T) {
	geocoder := &fakeGeocoder{coords: Coordinates{Lat: 1.1, Lng: 2.2}}
	e := NewEnricher(geocoder, 100, 100, time.Second)

	job1 := model.Job{City: "Nairobi", Country: "Kenya"}
	job2 := model.Job{City: "Nairobi", Country: "Kenya"}

	e.Enrich(context.Background(), &job1)
	e.Enrich(context.Background(), &job2)

	require.NotNil(t, job1.Latitude)
	require.NotNil(t, job2.Latitude)
	assert.Equal(t, 1, geocoder.calls)
}

func TestEnrichNonFatalOnError(t *testing.T) {
	geocoder := &fakeGeocoder{err: errors.New("provider down")}
	e := NewEnricher(geocoder, 100, 100, time.Second)

	job := model.Job{City: "Lagos", Country: "Nigeria"}
	e.Enrich(context.Background(), &job)

	assert.Nil(t, job.Latitude)
}
