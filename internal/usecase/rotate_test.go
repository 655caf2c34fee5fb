package usecase

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"backupbot/internal/infrastructure/logger"
)

// touch creates an artifact file with the given mod time.
func touch(t *testing.T, dir, name string, mtime time.Time) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("artifact"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}
}

func listNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names
}

func TestRotator(t *testing.T) {
	Convey("Given a rotator", t, func() {
		rotator := NewRotator(logger.NewNop())
		dir := t.TempDir()
		base := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)

		Convey("When rotating three artifacts", func() {
			touch(t, dir, "20260829T080000-scripts.tar.gz", base.Add(-2*time.Hour))
			touch(t, dir, "20260829T090000-scripts.tar.gz", base.Add(-time.Hour))
			touch(t, dir, "20260829T100000-scripts.tar.gz", base)

			finals, err := rotator.Rotate(dir, 5)

			Convey("The newest gets rank 0 and the oldest the highest rank", func() {
				So(err, ShouldBeNil)
				So(finals, ShouldResemble, []string{
					"20260829T100000-scripts.v0.tar.gz",
					"20260829T090000-scripts.v1.tar.gz",
					"20260829T080000-scripts.v2.tar.gz",
				})
				So(listNames(t, dir), ShouldResemble, []string{
					"20260829T080000-scripts.v2.tar.gz",
					"20260829T090000-scripts.v1.tar.gz",
					"20260829T100000-scripts.v0.tar.gz",
				})
			})

			Convey("Rotating again without a new artifact changes nothing", func() {
				So(err, ShouldBeNil)
				before := listNames(t, dir)

				again, err := rotator.Rotate(dir, 5)
				So(err, ShouldBeNil)
				So(again, ShouldResemble, finals)
				So(listNames(t, dir), ShouldResemble, before)
			})
		})

		Convey("When the count exceeds maxVersions", func() {
			touch(t, dir, "20260829T070000-db.sql", base.Add(-3*time.Hour))
			touch(t, dir, "20260829T080000-db.sql", base.Add(-2*time.Hour))
			touch(t, dir, "20260829T090000-db.sql", base.Add(-time.Hour))

			finals, err := rotator.Rotate(dir, 2)

			Convey("The oldest excess artifact is evicted", func() {
				So(err, ShouldBeNil)
				So(finals, ShouldHaveLength, 2)
				So(listNames(t, dir), ShouldResemble, []string{
					"20260829T080000-db.v1.sql",
					"20260829T090000-db.v0.sql",
				})
			})
		})

		Convey("When artifacts already carry ranks and a new one arrives", func() {
			touch(t, dir, "20260829T080000-db.v1.sql", base.Add(-2*time.Hour))
			touch(t, dir, "20260829T090000-db.v0.sql", base.Add(-time.Hour))
			touch(t, dir, "20260829T100000-db.sql", base)

			_, err := rotator.Rotate(dir, 2)

			Convey("Ranks shift and the oldest of the three is evicted", func() {
				So(err, ShouldBeNil)
				So(listNames(t, dir), ShouldResemble, []string{
					"20260829T090000-db.v1.sql",
					"20260829T100000-db.v0.sql",
				})
			})
		})

		Convey("When artifacts share one mod time", func() {
			same := base
			touch(t, dir, "20260829T100000-vol.tar.gz", same)
			touch(t, dir, "20260829T100000-vol-1.tar.gz", same)

			finals, err := rotator.Rotate(dir, 5)

			Convey("No two artifacts end up with the same derived name", func() {
				So(err, ShouldBeNil)
				So(finals, ShouldHaveLength, 2)
				names := listNames(t, dir)
				So(names, ShouldHaveLength, 2)
				So(names[0], ShouldNotEqual, names[1])
			})
		})

		Convey("When a previous rotation crashed mid-rename", func() {
			touch(t, dir, "20260829T090000-db.v0.sql.rotating~", base.Add(-time.Hour))
			touch(t, dir, "20260829T100000-db.sql", base)

			_, err := rotator.Rotate(dir, 5)

			Convey("The temp-named artifact is recovered into the sequence", func() {
				So(err, ShouldBeNil)
				So(listNames(t, dir), ShouldResemble, []string{
					"20260829T090000-db.v1.sql",
					"20260829T100000-db.v0.sql",
				})
			})
		})

		Convey("When the directory holds unrelated files", func() {
			touch(t, dir, "20260829T100000-db.sql", base)
			So(os.WriteFile(filepath.Join(dir, "README.txt"), []byte("notes"), 0o644), ShouldBeNil)

			_, err := rotator.Rotate(dir, 1)

			Convey("They are left alone", func() {
				So(err, ShouldBeNil)
				So(listNames(t, dir), ShouldResemble, []string{
					"20260829T100000-db.v0.sql",
					"README.txt",
				})
			})
		})

		Convey("When the directory is empty", func() {
			finals, err := rotator.Rotate(dir, 3)

			So(err, ShouldBeNil)
			So(finals, ShouldBeEmpty)
		})
	})
}
