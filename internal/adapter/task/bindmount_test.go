package task

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"backupbot/internal/adapter/archive"
	"backupbot/internal/domain"
	"backupbot/internal/infrastructure/logger"
)

func testService(root string) domain.Service {
	return domain.Service{
		Name:          "http-server",
		ContainerName: "http-server-1",
		BindMounts: []domain.BindMount{
			{HostPath: filepath.Join(root, "scripts"), MountPoint: "/usr/share/scripts"},
			{HostPath: filepath.Join(root, "content"), MountPoint: "/usr/share/content"},
		},
		Volumes: []domain.Volume{
			{Name: "test_volume", MountPoint: "/tmp/volume"},
		},
	}
}

func TestBindMountBackup(t *testing.T) {
	Convey("Given a bind mount backup task", t, func() {
		root := t.TempDir()
		So(os.MkdirAll(filepath.Join(root, "scripts"), 0o755), ShouldBeNil)
		So(os.WriteFile(filepath.Join(root, "scripts", "run.sh"), []byte("echo hi\n"), 0o755), ShouldBeNil)
		So(os.MkdirAll(filepath.Join(root, "content"), 0o755), ShouldBeNil)

		service := testService(root)
		deps := Deps{Writer: archive.NewWriter(), Logger: logger.NewNop()}
		dir := t.TempDir()

		Convey("When backing up one named mount", func() {
			backup, err := Build(domain.TaskSpec{Kind: domain.TaskBindMount, BindMounts: []string{"scripts"}}, deps)
			So(err, ShouldBeNil)

			artifacts, err := backup.Execute(context.Background(), service, dir)

			Convey("It should produce one artifact under the target directory", func() {
				So(err, ShouldBeNil)
				So(artifacts, ShouldHaveLength, 1)
				So(artifacts[0].Target, ShouldEqual, "scripts")
				So(filepath.Dir(artifacts[0].Path), ShouldEqual, filepath.Join(dir, "scripts"))

				_, statErr := os.Stat(artifacts[0].Path)
				So(statErr, ShouldBeNil)
			})
		})

		Convey("When the spec references all mounts", func() {
			backup, err := Build(domain.TaskSpec{Kind: domain.TaskBindMount, BindMounts: []string{"all"}}, deps)
			So(err, ShouldBeNil)

			targets, err := backup.Targets(service)

			Convey("It should expand to every declared mount", func() {
				So(err, ShouldBeNil)
				So(targets, ShouldResemble, []string{"scripts", "content"})
			})
		})

		Convey("When the spec references an undeclared mount", func() {
			backup, err := Build(domain.TaskSpec{Kind: domain.TaskBindMount, BindMounts: []string{"ghost"}}, deps)
			So(err, ShouldBeNil)

			_, err = backup.Targets(service)

			Convey("It should fail with PathNotFound", func() {
				So(errors.Is(err, domain.ErrPathNotFound), ShouldBeTrue)
			})
		})

		Convey("When the declared host path is gone at execution time", func() {
			backup, err := Build(domain.TaskSpec{Kind: domain.TaskBindMount, BindMounts: []string{"scripts"}}, deps)
			So(err, ShouldBeNil)
			So(os.RemoveAll(filepath.Join(root, "scripts")), ShouldBeNil)

			_, err = backup.Execute(context.Background(), service, dir)

			Convey("It should fail with a per-target task error", func() {
				var taskErr *domain.TaskError
				So(errors.As(err, &taskErr), ShouldBeTrue)
				So(taskErr.Target, ShouldEqual, "scripts")
				So(errors.Is(err, domain.ErrPathNotFound), ShouldBeTrue)
			})
		})

		Convey("PauseSet", func() {
			Convey("It should pause the owning service by default", func() {
				backup, err := Build(domain.TaskSpec{Kind: domain.TaskBindMount, BindMounts: []string{"scripts"}}, deps)
				So(err, ShouldBeNil)
				So(backup.PauseSet(service), ShouldResemble, []string{"http-server-1"})
			})

			Convey("It should honor the pause override", func() {
				noPause := false
				backup, err := Build(domain.TaskSpec{Kind: domain.TaskBindMount, BindMounts: []string{"scripts"}, Pause: &noPause}, deps)
				So(err, ShouldBeNil)
				So(backup.PauseSet(service), ShouldBeEmpty)
			})
		})
	})
}
