// Package dataset stores normalized face samples, one directory per identity:
//
//	<root>/<identity>/1.pgm
//	<root>/<identity>/2.pgm
//	...
package dataset

import (
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/abihf/rollcall/capture"
	"github.com/pkg/errors"
	"github.com/spakin/netpbm"
	"golang.org/x/image/draw"
)

const DefaultSize = 100

var ErrInvalidIdentity = errors.New("invalid identity")

// Sample is one normalized face owned by exactly one identity.
type Sample struct {
	Identity string
	Seq      int
	Image    *image.Gray
}

// Dataset is a full snapshot of the store. Identities includes partitions
// that hold no samples yet.
type Dataset struct {
	Identities []string
	Samples    []Sample
}

// Counts returns the number of samples per identity.
func (d *Dataset) Counts() map[string]int {
	counts := make(map[string]int, len(d.Identities))
	for _, id := range d.Identities {
		counts[id] = 0
	}
	for _, s := range d.Samples {
		counts[s.Identity]++
	}
	return counts
}

func ValidateIdentity(identity string) error {
	if identity == "" || strings.TrimSpace(identity) != identity {
		return errors.Wrapf(ErrInvalidIdentity, "%q", identity)
	}
	if strings.HasPrefix(identity, ".") || strings.ContainsAny(identity, `/\`) {
		return errors.Wrapf(ErrInvalidIdentity, "%q", identity)
	}
	return nil
}

// Normalize converts img to a size x size grayscale image.
func Normalize(img image.Image, size int) (*image.Gray, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, errors.Wrap(capture.ErrInvalidFrame, "Empty face image")
	}
	b := img.Bounds()
	dst := image.NewGray(image.Rect(0, 0, size, size))

	if b.Dx() == size && b.Dy() == size {
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
		return dst, nil
	}

	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst, nil
}

// Store is the on-disk sample store. It is safe for one writer per process.
type Store struct {
	root string
	size int
	mu   sync.Mutex
}

func NewStore(root string, size int) *Store {
	if size <= 0 {
		size = DefaultSize
	}
	return &Store{root: root, size: size}
}

func (s *Store) Root() string { return s.root }
func (s *Store) Size() int    { return s.size }

// AddSample normalizes face, appends it under the identity's partition and
// returns the identity's new sample count.
func (s *Store) AddSample(identity string, face image.Image) (int, error) {
	if err := ValidateIdentity(identity); err != nil {
		return 0, err
	}
	norm, err := Normalize(face, s.size)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(s.root, identity)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, errors.Wrap(err, "Can not create identity directory")
	}

	seqs, err := sequences(dir)
	if err != nil {
		return 0, err
	}
	next := 1
	if len(seqs) > 0 {
		next = seqs[len(seqs)-1].seq + 1
	}

	path := filepath.Join(dir, strconv.Itoa(next)+".pgm")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, errors.Wrap(err, "Can not create sample file")
	}
	err = netpbm.Encode(f, norm, &netpbm.EncodeOptions{Format: netpbm.PGM, MaxValue: 255})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return 0, errors.Wrap(err, "Can not write sample")
	}

	return len(seqs) + 1, nil
}

// Count returns the number of samples stored for identity.
func (s *Store) Count(identity string) (int, error) {
	if err := ValidateIdentity(identity); err != nil {
		return 0, err
	}
	seqs, err := sequences(filepath.Join(s.root, identity))
	if os.IsNotExist(errors.Cause(err)) {
		return 0, nil
	}
	return len(seqs), err
}

// Identities lists identity partitions in lexical order.
func (s *Store) Identities() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "Can not read dataset")
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() && ValidateIdentity(e.Name()) == nil {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Reset removes every sample of identity so it can be enrolled from scratch.
func (s *Store) Reset(identity string) error {
	if err := ValidateIdentity(identity); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return errors.Wrap(os.RemoveAll(filepath.Join(s.root, identity)), "Can not remove samples")
}

// Load reads every sample, ordered by identity then sequence number.
func (s *Store) Load() (*Dataset, error) {
	ids, err := s.Identities()
	if err != nil {
		return nil, err
	}
	ds := &Dataset{Identities: ids}
	for _, id := range ids {
		seqs, err := sequences(filepath.Join(s.root, id))
		if err != nil {
			return nil, err
		}
		for _, sf := range seqs {
			img, err := readImage(sf.path)
			if err != nil {
				return nil, errors.Wrapf(err, "Can not read sample %s", sf.path)
			}
			norm, err := Normalize(img, s.size)
			if err != nil {
				return nil, errors.Wrapf(err, "Bad sample %s", sf.path)
			}
			ds.Samples = append(ds.Samples, Sample{Identity: id, Seq: sf.seq, Image: norm})
		}
	}
	return ds, nil
}

type sampleFile struct {
	seq  int
	path string
}

var sampleExt = map[string]bool{".pgm": true, ".png": true, ".jpg": true, ".jpeg": true}

func sequences(dir string) ([]sampleFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "Can not read identity directory")
	}
	var out []sampleFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if !sampleExt[ext] {
			continue
		}
		seq, err := strconv.Atoi(strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())))
		if err != nil || seq <= 0 {
			continue
		}
		out = append(out, sampleFile{seq: seq, path: filepath.Join(dir, e.Name())})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out, nil
}

func readImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".pgm") {
		return netpbm.Decode(f, &netpbm.DecodeOptions{Target: netpbm.PGM})
	}
	img, _, err := image.Decode(f)
	return img, err
}
