package main

import (
	"crypto/sha256"
	"embed"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strconv"
)

//go:embed *.sql
var embeddedSQL embed.FS

// migrationName enforces the naming standard: a three-digit sequence, a
// snake_case name, and an explicit direction, e.g. 001_create_runs_table.up.sql.
var migrationName = regexp.MustCompile(`^(\d{3})_([a-zA-Z0-9_]+)\.(up|down)\.sql$`)

// migrationFile is one parsed migration filename.
type migrationFile struct {
	sequence  int
	name      string
	direction string
}

// parseMigrationName splits a filename into its sequence, name, and
// direction, rejecting anything outside the naming standard.
func parseMigrationName(filename string) (migrationFile, error) {
	matches := migrationName.FindStringSubmatch(filename)
	if matches == nil {
		return migrationFile{}, fmt.Errorf(
			"migration %q does not match NNN_name.(up|down).sql", filename)
	}

	sequence, err := strconv.Atoi(matches[1])
	if err != nil {
		return migrationFile{}, fmt.Errorf("migration %q: bad sequence: %w", filename, err)
	}

	return migrationFile{
		sequence:  sequence,
		name:      matches[2],
		direction: matches[3],
	}, nil
}

// Catalog is the set of migration files shipped inside the binary. Verify
// checks the set is well formed before the runner touches the database.
type Catalog struct {
	fs fs.FS

	// checksums remembers each file's content hash from the first Verify so
	// later Verify calls can detect drift within the same process.
	checksums map[string]string
}

// NewCatalog wraps a migration filesystem. Passing nil selects the SQL files
// embedded in this binary.
func NewCatalog(fsys fs.FS) *Catalog {
	if fsys == nil {
		fsys = embeddedSQL
	}

	return &Catalog{
		fs:        fsys,
		checksums: make(map[string]string),
	}
}

// FS exposes the underlying filesystem for the migration source driver.
func (c *Catalog) FS() fs.FS {
	return c.fs
}

// Files lists the migration filenames in lexicographic order. Files outside
// the naming standard are reported as errors, not silently skipped; a typo in
// a migration name must fail loudly rather than drop the migration.
func (c *Catalog) Files() ([]string, error) {
	entries, err := fs.ReadDir(c.fs, ".")
	if err != nil {
		return nil, fmt.Errorf("read migration directory: %w", err)
	}

	var files []string

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		if _, err := parseMigrationName(entry.Name()); err != nil {
			return nil, err
		}

		files = append(files, entry.Name())
	}

	sort.Strings(files)

	return files, nil
}

// Content returns the raw SQL of one migration file.
func (c *Catalog) Content(filename string) ([]byte, error) {
	return fs.ReadFile(c.fs, filename)
}

// MaxSequence returns the highest migration sequence in the catalog, or 0
// when the catalog is empty or unreadable.
func (c *Catalog) MaxSequence() int {
	files, err := c.Files()
	if err != nil {
		return 0
	}

	maxSeq := 0

	for _, filename := range files {
		parsed, err := parseMigrationName(filename)
		if err != nil {
			continue
		}

		if parsed.sequence > maxSeq {
			maxSeq = parsed.sequence
		}
	}

	return maxSeq
}

// pairState tracks which directions of one migration have been seen.
type pairState struct {
	up   bool
	down bool
}

// Verify checks the catalog in one pass: every filename parses, every
// migration has both an up and a down file, the sequence is contiguous from
// 001, and no file's content has changed since the previous Verify.
func (c *Catalog) Verify() error {
	files, err := c.Files()
	if err != nil {
		return err
	}

	if len(files) == 0 {
		return fmt.Errorf("migration catalog is empty")
	}

	pairs := make(map[int]*pairState)
	names := make(map[int]string)

	for _, filename := range files {
		parsed, err := parseMigrationName(filename)
		if err != nil {
			return err
		}

		if prev, ok := names[parsed.sequence]; ok && prev != parsed.name {
			return fmt.Errorf("sequence %03d used by both %q and %q",
				parsed.sequence, prev, parsed.name)
		}

		names[parsed.sequence] = parsed.name

		state := pairs[parsed.sequence]
		if state == nil {
			state = &pairState{}
			pairs[parsed.sequence] = state
		}

		if parsed.direction == "up" {
			state.up = true
		} else {
			state.down = true
		}

		content, err := c.Content(filename)
		if err != nil {
			return fmt.Errorf("read migration %q: %w", filename, err)
		}

		sum := fmt.Sprintf("%x", sha256.Sum256(content))
		if recorded, ok := c.checksums[filename]; ok && recorded != sum {
			return fmt.Errorf("migration %q changed since it was verified", filename)
		}

		c.checksums[filename] = sum
	}

	sequences := make([]int, 0, len(pairs))
	for seq := range pairs {
		sequences = append(sequences, seq)
	}

	sort.Ints(sequences)

	for i, seq := range sequences {
		if seq != i+1 {
			return fmt.Errorf("migration sequence has a gap: expected %03d, found %03d", i+1, seq)
		}

		state := pairs[seq]
		switch {
		case !state.up:
			return fmt.Errorf("migration %03d_%s has no up file", seq, names[seq])
		case !state.down:
			return fmt.Errorf("migration %03d_%s has no down file", seq, names[seq])
		}
	}

	return nil
}
