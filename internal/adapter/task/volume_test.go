package task

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"backupbot/internal/adapter/archive"
	"backupbot/internal/domain"
	"backupbot/internal/infrastructure/logger"
	"backupbot/internal/runtimetest"
)

func TestVolumeBackup(t *testing.T) {
	Convey("Given a volume backup task", t, func() {
		service := testService(t.TempDir())
		runtime := runtimetest.New("http-server-1")
		deps := Deps{
			Writer:      archive.NewWriter(),
			Runtime:     runtime,
			HelperImage: "alpine:latest",
			Logger:      logger.NewNop(),
		}
		dir := t.TempDir()

		backup, err := Build(domain.TaskSpec{Kind: domain.TaskVolume, Volumes: []string{"test_volume"}}, deps)
		So(err, ShouldBeNil)

		Convey("When the helper container succeeds", func() {
			artifacts, err := backup.Execute(context.Background(), service, dir)

			Convey("It should report one artifact in the volume's target directory", func() {
				So(err, ShouldBeNil)
				So(artifacts, ShouldHaveLength, 1)
				So(artifacts[0].Target, ShouldEqual, "test_volume")
				So(filepath.Dir(artifacts[0].Path), ShouldEqual, filepath.Join(dir, "test_volume"))
				So(strings.HasSuffix(artifacts[0].Path, ".tar.gz"), ShouldBeTrue)
			})

			Convey("It should mount the volume read-only at its declared mount point", func() {
				So(err, ShouldBeNil)
				So(runtime.Ran, ShouldHaveLength, 1)
				helper := runtime.Ran[0]
				So(helper.Image, ShouldEqual, "alpine:latest")
				So(helper.Binds[0], ShouldEqual, "test_volume:/tmp/volume:ro")
				So(helper.Binds[1], ShouldEqual, filepath.Join(dir, "test_volume")+":/backup")
				So(helper.Cmd[0], ShouldEqual, "tar")
				So(helper.Cmd, ShouldContain, "/tmp/volume")
			})

			Convey("It should remove the helper container", func() {
				So(err, ShouldBeNil)
				So(runtime.RemainingHelpers(), ShouldEqual, 0)
			})
		})

		Convey("When the archive command exits non-zero", func() {
			runtime.WaitExit = 2

			_, err := backup.Execute(context.Background(), service, dir)

			Convey("It should fail with HelperContainerError and still remove the helper", func() {
				So(errors.Is(err, domain.ErrHelperContainer), ShouldBeTrue)
				So(runtime.RemainingHelpers(), ShouldEqual, 0)
			})

			Convey("It should leave no artifact behind in the target directory", func() {
				entries, readErr := os.ReadDir(filepath.Join(dir, "test_volume"))
				So(readErr, ShouldBeNil)
				So(entries, ShouldBeEmpty)
			})
		})

		Convey("When waiting on the helper fails", func() {
			runtime.WaitErr = errors.New("engine connection lost")

			_, err := backup.Execute(context.Background(), service, dir)

			Convey("It should fail and leave no artifact behind", func() {
				So(errors.Is(err, domain.ErrHelperContainer), ShouldBeTrue)

				entries, readErr := os.ReadDir(filepath.Join(dir, "test_volume"))
				So(readErr, ShouldBeNil)
				So(entries, ShouldBeEmpty)
			})
		})

		Convey("When the helper fails to start", func() {
			runtime.RunErr = errors.New("image not found")

			_, err := backup.Execute(context.Background(), service, dir)

			Convey("It should fail with HelperContainerError", func() {
				So(errors.Is(err, domain.ErrHelperContainer), ShouldBeTrue)
			})

			Convey("It should leave no artifact behind in the target directory", func() {
				entries, readErr := os.ReadDir(filepath.Join(dir, "test_volume"))
				So(readErr, ShouldBeNil)
				So(entries, ShouldBeEmpty)
			})
		})

		Convey("When removing the helper fails", func() {
			runtime.RemoveErr = errors.New("in use")

			artifacts, err := backup.Execute(context.Background(), service, dir)

			Convey("The backup should still succeed, removal is logged only", func() {
				So(err, ShouldBeNil)
				So(artifacts, ShouldHaveLength, 1)
			})
		})

		Convey("When the spec references an undeclared volume", func() {
			backup, err := Build(domain.TaskSpec{Kind: domain.TaskVolume, Volumes: []string{"ghost"}}, deps)
			So(err, ShouldBeNil)

			_, err = backup.Targets(service)

			Convey("It should fail with VolumeNotFound", func() {
				So(errors.Is(err, domain.ErrVolumeNotFound), ShouldBeTrue)
			})
		})

		Convey("When the task succeeds the reserved artifact file exists on the host", func() {
			artifacts, err := backup.Execute(context.Background(), service, dir)
			So(err, ShouldBeNil)

			_, statErr := os.Stat(artifacts[0].Path)
			So(statErr, ShouldBeNil)
		})
	})
}
