// Package archive stores encoded streams as Ogg objects in blob storage and
// keeps a catalog of them.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/glizzus/soundcodec/internal/codec"
	"github.com/glizzus/soundcodec/internal/container"
	"github.com/glizzus/soundcodec/internal/datalayer"
	"github.com/glizzus/soundcodec/internal/decoder"
	"github.com/glizzus/soundcodec/internal/encoder"
	"github.com/glizzus/soundcodec/internal/generator"
	"github.com/glizzus/soundcodec/internal/pipeline"
	"github.com/glizzus/soundcodec/internal/repository"
	"github.com/glizzus/soundcodec/internal/segment"
)

const contentType = "audio/ogg"

// BlobKey is where the stream with the given ID is stored.
func BlobKey(id string) string {
	return "streams/" + id + ".ogg"
}

type Archiver struct {
	blobs   datalayer.BlobStorage
	catalog repository.StreamCatalog
	ids     generator.Generator[string]
	serials generator.Generator[uint32]
	logger  *slog.Logger
}

type Option func(*Archiver)

func WithLogger(logger *slog.Logger) Option {
	return func(a *Archiver) { a.logger = logger }
}

// WithIDs replaces the UUID stream ID generator.
func WithIDs(ids generator.Generator[string]) Option {
	return func(a *Archiver) { a.ids = ids }
}

// WithSerials replaces the source of Ogg bitstream serial numbers.
func WithSerials(serials generator.Generator[uint32]) Option {
	return func(a *Archiver) { a.serials = serials }
}

func New(blobs datalayer.BlobStorage, catalog repository.StreamCatalog, opts ...Option) *Archiver {
	a := &Archiver{
		blobs:   blobs,
		catalog: catalog,
		ids:     &generator.UUIDV4Generator{},
		serials: &generator.SerialGenerator{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// StoreRequest describes a stream to encode and archive.
type StoreRequest struct {
	Name    string
	Config  codec.Config
	Backend string
	Tail    segment.TailPolicy
}

// Store encodes the s16le PCM read from r and archives it. The blob is
// removed again if the catalog cannot record it.
func (a *Archiver) Store(ctx context.Context, req StoreRequest, r io.Reader) (repository.StreamRecord, error) {
	id, err := a.ids.Next()
	if err != nil {
		return repository.StreamRecord{}, fmt.Errorf("generate stream id: %w", err)
	}
	serial, err := a.serials.Next()
	if err != nil {
		return repository.StreamRecord{}, fmt.Errorf("generate ogg serial: %w", err)
	}

	seg, err := segment.New(segment.ConfigFor(req.Config, req.Tail))
	if err != nil {
		return repository.StreamRecord{}, err
	}
	enc, err := encoder.Open(req.Config, encoder.WithBackend(req.Backend), encoder.WithLogger(a.logger))
	if err != nil {
		return repository.StreamRecord{}, err
	}
	defer enc.Close()

	var buf bytes.Buffer
	ogg, err := container.NewOggWriter(&buf, serial, container.Header{Config: req.Config, Backend: enc.Backend()})
	if err != nil {
		return repository.StreamRecord{}, err
	}
	res, err := pipeline.EncodeStream(ctx, r, seg, enc, ogg, pipeline.WithLogger(a.logger))
	if err != nil {
		return repository.StreamRecord{}, err
	}
	if err := ogg.Close(); err != nil {
		return repository.StreamRecord{}, err
	}

	record := repository.StreamRecord{
		ID:           id,
		Name:         req.Name,
		Backend:      enc.Backend(),
		Config:       req.Config,
		Packets:      int64(res.Packets),
		PayloadBytes: int64(res.PayloadBytes),
		BlobKey:      BlobKey(id),
	}

	size := int64(buf.Len())
	if err := a.blobs.Put(ctx, record.BlobKey, &buf, datalayer.PutOptions{Size: size, ContentType: contentType}); err != nil {
		return repository.StreamRecord{}, err
	}
	if err := a.catalog.Save(ctx, record); err != nil {
		if derr := a.blobs.Delete(ctx, record.BlobKey); derr != nil {
			err = errors.Join(err, derr)
		}
		return repository.StreamRecord{}, fmt.Errorf("save stream %s: %w", id, err)
	}

	a.logger.Info("Archived stream", "id", id, "name", req.Name, "packets", res.Packets, "bytes", size)
	return record, nil
}

// Stream is an archived stream opened for reading.
type Stream struct {
	Record repository.StreamRecord
	*container.OggReader
	body io.Closer
}

func (s *Stream) Close() error {
	return s.body.Close()
}

// Open looks up the stream and opens its Ogg container.
func (a *Archiver) Open(ctx context.Context, id string) (*Stream, error) {
	record, err := a.catalog.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	body, err := a.blobs.Get(ctx, record.BlobKey)
	if err != nil {
		return nil, err
	}
	r, err := container.NewOggReader(body)
	if err != nil {
		body.Close()
		return nil, fmt.Errorf("open stream %s: %w", id, err)
	}
	return &Stream{Record: record, OggReader: r, body: body}, nil
}

// Decode writes the decoded PCM of the stream to w as s16le.
func (a *Archiver) Decode(ctx context.Context, id string, w io.Writer) (pipeline.Result, error) {
	s, err := a.Open(ctx, id)
	if err != nil {
		return pipeline.Result{}, err
	}
	defer s.Close()

	h := s.Header()
	dec, err := decoder.Open(h.Config, decoder.WithBackend(h.Backend), decoder.WithLogger(a.logger))
	if err != nil {
		return pipeline.Result{}, err
	}
	defer dec.Close()

	return pipeline.DecodeStream(ctx, s, dec, w, pipeline.WithLogger(a.logger))
}

// List returns up to limit archived streams, newest first.
func (a *Archiver) List(ctx context.Context, limit int) ([]repository.StreamRecord, error) {
	return a.catalog.List(ctx, limit)
}

// Delete removes the stream from the catalog and blob storage.
func (a *Archiver) Delete(ctx context.Context, id string) error {
	record, err := a.catalog.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := a.catalog.Delete(ctx, id); err != nil {
		return err
	}
	if err := a.blobs.Delete(ctx, record.BlobKey); err != nil && !errors.Is(err, datalayer.ErrBlobNotFound) {
		return err
	}
	return nil
}
