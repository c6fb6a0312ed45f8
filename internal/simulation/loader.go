package simulation

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"
	pgzip "github.com/klauspost/pgzip"
	"go.uber.org/zap"

	"github.com/xenking/pos-pricing/internal/domain/promotion"
)

const (
	defaultBloomCapacity = 100_000
	bloomFPR             = 0.001
	maxLineSize          = 16 << 20
	progressEvery        = 10_000
)

// Batch is a loaded scenario file.
type Batch struct {
	Scenarios []Scenario
	// Duplicates lists ids seen more than once. Detection goes through a
	// bloom filter, so an entry may rarely be a false positive.
	Duplicates []string
}

// Loader reads scenarios from a JSON array or a JSON-lines stream.
type Loader struct {
	lg       *zap.Logger
	capacity uint
}

// NewLoader creates a Loader. capacity sizes the duplicate filter and may be
// zero.
func NewLoader(lg *zap.Logger, capacity uint) *Loader {
	if lg == nil {
		lg = zap.NewNop()
	}
	if capacity == 0 {
		capacity = defaultBloomCapacity
	}
	return &Loader{lg: lg, capacity: capacity}
}

// LoadFile reads path, gunzipping it when the name ends in .gz.
func (l *Loader) LoadFile(ctx context.Context, path string) (*Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrapf(err, "create gzip reader for %s", path)
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	b, err := l.Load(ctx, r)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", path)
	}
	return b, nil
}

// Load reads scenarios from r. A stream whose first non-space byte is '['
// is a JSON array; anything else is read as one scenario per line.
// Scenarios without an id get a random one.
func (l *Loader) Load(ctx context.Context, r io.Reader) (*Batch, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return &Batch{}, nil
		}
		return nil, errors.Wrap(err, "peek")
	}

	b := &Batch{}
	seen := bloom.NewWithEstimates(l.capacity, bloomFPR)
	add := func(s Scenario) {
		if s.ID == "" {
			s.ID = uuid.NewString()
		}
		if seen.TestString(s.ID) {
			b.Duplicates = append(b.Duplicates, s.ID)
		} else {
			seen.AddString(s.ID)
		}
		b.Scenarios = append(b.Scenarios, s)
		if n := len(b.Scenarios); n%progressEvery == 0 {
			l.lg.Info("Loading scenarios", zap.Int("loaded", n))
		}
	}

	if first == '[' {
		err = l.loadArray(ctx, br, add)
	} else {
		err = l.loadLines(ctx, br, add)
	}
	if err != nil {
		return nil, err
	}

	if len(b.Duplicates) > 0 {
		l.lg.Warn("Duplicate scenario ids",
			zap.Int("count", len(b.Duplicates)),
			zap.Strings("ids", b.Duplicates),
		)
	}
	return b, nil
}

func (l *Loader) loadArray(ctx context.Context, r io.Reader, add func(Scenario)) error {
	d := jx.Decode(r, 64<<10)
	i := 0
	return d.Arr(func(d *jx.Decoder) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		var s Scenario
		if err := s.Decode(d); err != nil {
			return errors.Wrapf(err, "scenario %d", i)
		}
		i++
		add(s)
		return nil
	})
}

func (l *Loader) loadLines(ctx context.Context, r io.Reader, add func(Scenario)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), maxLineSize)
	n := 0
	for scanner.Scan() {
		n++
		if err := ctx.Err(); err != nil {
			return err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var s Scenario
		if err := s.Decode(jx.DecodeBytes(line)); err != nil {
			return errors.Wrapf(err, "line %d", n)
		}
		add(s)
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "scan")
	}
	return nil
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		c, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch c {
		case ' ', '\t', '\r', '\n':
			continue
		}
		if err := br.UnreadByte(); err != nil {
			return 0, err
		}
		return c, nil
	}
}

// LoadDefaults reads harness defaults from a JSON file. Inactive
// promotions are dropped; validity windows and branch restrictions are not
// applied offline.
func LoadDefaults(path string) (Defaults, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Defaults{}, errors.Wrapf(err, "read %s", path)
	}
	var def Defaults
	if err := def.Decode(jx.DecodeBytes(data)); err != nil {
		return Defaults{}, errors.Wrapf(err, "parse %s", path)
	}
	def.Promotions = slices.DeleteFunc(def.Promotions, func(p promotion.Promotion) bool {
		return !p.Active
	})
	return def, nil
}
