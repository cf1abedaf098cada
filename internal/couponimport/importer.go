// Package couponimport loads coupon definitions from gzipped CSV files.
//
// Each line is `code,discount_type,discount_value[,expires_at[,usage_limit[,description]]]`.
// A leading header line starting with "code" is skipped. Codes defined in more
// than one file are conflicting and are not imported.
package couponimport

import (
	"context"
	"encoding/csv"
	"io"
	"math/bits"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront-checkout/internal/domain/coupon"
)

// MaxFiles is the number of files a single import accepts.
const MaxFiles = bits.UintSize

// Store persists imported coupons.
type Store interface {
	Upsert(ctx context.Context, c coupon.Coupon) error
}

// Options tunes the bloom pre-pass.
type Options struct {
	// ExpectedCodes is the estimated number of codes per file.
	ExpectedCodes uint
	// FalsePositiveRate of each per-file filter.
	FalsePositiveRate float64
}

func (o *Options) setDefaults() {
	if o.ExpectedCodes == 0 {
		o.ExpectedCodes = 1_000_000
	}
	if o.FalsePositiveRate <= 0 {
		o.FalsePositiveRate = 0.001
	}
}

// Result summarizes an import.
type Result struct {
	Imported  int
	Invalid   int
	Conflicts []string
}

// Importer reads coupon files and upserts them.
type Importer struct {
	store Store
	opts  Options
}

// New creates an Importer.
func New(store Store, opts Options) *Importer {
	opts.setDefaults()
	return &Importer{store: store, opts: opts}
}

type fileScan struct {
	coupons    []coupon.Coupon
	invalid    int
	candidates map[string]uint
}

// Import reads all files and upserts every coupon whose code is defined in
// exactly one file. Within a file the last definition of a code wins.
func (im *Importer) Import(ctx context.Context, files []string) (Result, error) {
	if len(files) == 0 {
		return Result{}, errors.New("no input files")
	}
	if len(files) > MaxFiles {
		return Result{}, errors.Errorf("too many input files: %d > %d", len(files), MaxFiles)
	}
	lg := zctx.From(ctx)

	lg.Info("Building bloom filters", zap.Int("files", len(files)))
	filters, err := im.buildFilters(ctx, files)
	if err != nil {
		return Result{}, errors.Wrap(err, "build bloom filters")
	}

	lg.Info("Scanning coupon files")
	scans, err := scanFiles(ctx, files, filters)
	if err != nil {
		return Result{}, errors.Wrap(err, "scan files")
	}

	merged := make(map[string]uint)
	for _, s := range scans {
		for code, mask := range s.candidates {
			merged[code] |= mask
		}
	}
	conflicts := make(map[string]struct{})
	for code, mask := range merged {
		if bits.OnesCount(mask) >= 2 {
			conflicts[code] = struct{}{}
		}
	}

	var res Result
	for code := range conflicts {
		res.Conflicts = append(res.Conflicts, code)
	}
	sort.Strings(res.Conflicts)
	for _, s := range scans {
		res.Invalid += s.invalid
		for _, c := range s.coupons {
			if _, ok := conflicts[c.Code]; ok {
				continue
			}
			if err := im.store.Upsert(ctx, c); err != nil {
				return res, errors.Wrapf(err, "upsert coupon %s", c.Code)
			}
			res.Imported++
		}
	}

	lg.Info("Coupon import finished",
		zap.Int("imported", res.Imported),
		zap.Int("invalid", res.Invalid),
		zap.Int("conflicts", len(res.Conflicts)),
	)
	return res, nil
}

func (im *Importer) buildFilters(ctx context.Context, files []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			f := bloom.NewWithEstimates(im.opts.ExpectedCodes, im.opts.FalsePositiveRate)
			if err := streamFile(ctx, path, func(c coupon.Coupon) {
				f.AddString(c.Code)
			}, nil); err != nil {
				return err
			}
			filters[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// scanFiles parses every file and marks codes that the other files' filters
// may contain. The per-file bit masks are exact; only the candidate set is
// approximate.
func scanFiles(ctx context.Context, files []string, filters []*bloom.BloomFilter) ([]fileScan, error) {
	scans := make([]fileScan, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			s := fileScan{candidates: make(map[string]uint)}
			bit := uint(1) << uint(i)
			onInvalid := func(line int, err error) {
				s.invalid++
				zctx.From(ctx).Debug("Skip invalid coupon line",
					zap.String("file", path),
					zap.Int("line", line),
					zap.Error(err),
				)
			}
			if err := streamFile(ctx, path, func(c coupon.Coupon) {
				s.coupons = append(s.coupons, c)
				for j, f := range filters {
					if j != i && f.TestString(c.Code) {
						s.candidates[c.Code] |= bit
						return
					}
				}
			}, onInvalid); err != nil {
				return err
			}
			scans[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return scans, nil
}

// streamFile decodes a gzipped CSV file and calls fn for each valid coupon.
// Lines that do not parse are passed to onInvalid when it is set.
func streamFile(ctx context.Context, path string, fn func(coupon.Coupon), onInvalid func(line int, err error)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	r := csv.NewReader(gz)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	r.ReuseRecord = true

	for line := 1; ; line++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				if onInvalid != nil {
					onInvalid(line, err)
				}
				continue
			}
			return errors.Wrapf(err, "read %s", path)
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(rec[0]), "code") {
			continue
		}
		c, err := ParseRecord(rec)
		if err != nil {
			if onInvalid != nil {
				onInvalid(line, err)
			}
			continue
		}
		fn(c)
	}
}

// ParseRecord converts one CSV record into an active coupon.
func ParseRecord(rec []string) (coupon.Coupon, error) {
	if len(rec) < 3 {
		return coupon.Coupon{}, errors.Errorf("expected at least 3 fields, got %d", len(rec))
	}
	field := func(i int) string {
		if i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	c := coupon.Coupon{
		Code:         strings.ToUpper(field(0)),
		DiscountType: coupon.DiscountType(strings.ToUpper(field(1))),
		Description:  field(5),
		Active:       true,
	}
	if c.Code == "" {
		return coupon.Coupon{}, errors.New("empty code")
	}

	v, err := decimal.NewFromString(field(2))
	if err != nil {
		return coupon.Coupon{}, errors.Wrap(err, "discount value")
	}
	if v.IsNegative() {
		return coupon.Coupon{}, errors.New("negative discount value")
	}
	c.DiscountValue = v

	switch c.DiscountType {
	case coupon.DiscountPercentage:
		if v.GreaterThan(decimal.NewFromInt(100)) {
			return coupon.Coupon{}, errors.New("percentage above 100")
		}
	case coupon.DiscountFixedAmount:
	default:
		return coupon.Coupon{}, errors.Errorf("unknown discount type %q", field(1))
	}

	if s := field(3); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return coupon.Coupon{}, errors.Wrap(err, "expires_at")
		}
		t = t.UTC()
		c.ExpiresAt = &t
	}
	if s := field(4); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return coupon.Coupon{}, errors.Errorf("invalid usage_limit %q", s)
		}
		c.UsageLimit = &n
	}
	return c, nil
}
