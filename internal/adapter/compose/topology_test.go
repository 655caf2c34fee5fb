package compose

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"backupbot/internal/domain"
)

const composeContent = `
services:
  http-server:
    container_name: http-server-1
    image: nginx:latest
    hostname: http
    volumes:
      - ./scripts:/usr/share/scripts
      - test_volume:/tmp/volume
  database-service:
    image: mysql:8
    environment:
      - MYSQL_DATABASE=test_database
      - MYSQL_USER=root
      - MYSQL_PASSWORD=root_password
  cache:
    image: redis:7
    environment:
      REDIS_PASSWORD: hunter2
`

func loadTestTopology(t *testing.T) (*Topology, string) {
	t.Helper()
	root := t.TempDir()
	path := filepath.Join(root, "docker-compose.yaml")
	if err := os.WriteFile(path, []byte(composeContent), 0o644); err != nil {
		t.Fatal(err)
	}
	topo, err := Load(root, path)
	if err != nil {
		t.Fatal(err)
	}
	return topo, root
}

func TestTopology(t *testing.T) {
	Convey("Given a parsed compose topology", t, func() {
		topo, root := loadTestTopology(t)

		Convey("Resolve", func() {
			Convey("When resolving a declared service", func() {
				service, err := topo.Resolve("http-server")

				Convey("It should return identity and mounts", func() {
					So(err, ShouldBeNil)
					So(service.ContainerName, ShouldEqual, "http-server-1")
					So(service.Image, ShouldEqual, "nginx:latest")
					So(service.BindMounts, ShouldHaveLength, 1)
					So(service.BindMounts[0].HostPath, ShouldEqual, filepath.Join(root, "scripts"))
					So(service.BindMounts[0].MountPoint, ShouldEqual, "/usr/share/scripts")
					So(service.Volumes, ShouldHaveLength, 1)
					So(service.Volumes[0].Name, ShouldEqual, "test_volume")
					So(service.Volumes[0].MountPoint, ShouldEqual, "/tmp/volume")
				})
			})

			Convey("When a service has no container_name", func() {
				service, err := topo.Resolve("database-service")

				Convey("It should fall back to the service name", func() {
					So(err, ShouldBeNil)
					So(service.ContainerName, ShouldEqual, "database-service")
				})
			})

			Convey("When resolving an unknown service", func() {
				_, err := topo.Resolve("ghost")

				Convey("It should fail with ServiceNotFound", func() {
					So(errors.Is(err, domain.ErrServiceNotFound), ShouldBeTrue)
				})
			})
		})

		Convey("Environment parsing", func() {
			Convey("It should accept the list form", func() {
				service, err := topo.Resolve("database-service")
				So(err, ShouldBeNil)
				So(service.Environment["MYSQL_DATABASE"], ShouldEqual, "test_database")
			})

			Convey("It should accept the mapping form", func() {
				service, err := topo.Resolve("cache")
				So(err, ShouldBeNil)
				So(service.Environment["REDIS_PASSWORD"], ShouldEqual, "hunter2")
			})
		})

		Convey("ResolveKeyPath", func() {
			Convey("When the path resolves", func() {
				value, err := topo.ResolveKeyPath("database-service.environment.MYSQL_PASSWORD")

				So(err, ShouldBeNil)
				So(value, ShouldEqual, "root_password")
			})

			Convey("When the service segment is missing", func() {
				_, err := topo.ResolveKeyPath("ghost.environment.KEY")

				So(errors.Is(err, domain.ErrKeyResolution), ShouldBeTrue)
			})

			Convey("When the key segment is missing", func() {
				_, err := topo.ResolveKeyPath("database-service.environment.MISSING")

				So(errors.Is(err, domain.ErrKeyResolution), ShouldBeTrue)
			})

			Convey("When the section is unknown", func() {
				_, err := topo.ResolveKeyPath("database-service.labels.KEY")

				So(errors.Is(err, domain.ErrKeyResolution), ShouldBeTrue)
			})

			Convey("When the path is too short", func() {
				_, err := topo.ResolveKeyPath("just-a-word")

				So(errors.Is(err, domain.ErrKeyResolution), ShouldBeTrue)
			})
		})
	})

	Convey("Given an invalid compose file", t, func() {
		root := t.TempDir()

		Convey("When the file is missing", func() {
			_, err := Load(root, filepath.Join(root, "docker-compose.yaml"))
			So(err, ShouldNotBeNil)
		})

		Convey("When it has no services", func() {
			path := filepath.Join(root, "docker-compose.yaml")
			So(os.WriteFile(path, []byte("volumes: {}\n"), 0o644), ShouldBeNil)

			_, err := Load(root, path)
			So(err, ShouldNotBeNil)
		})

		Convey("When a volume entry has no delimiter", func() {
			path := filepath.Join(root, "docker-compose.yaml")
			So(os.WriteFile(path, []byte("services:\n  svc:\n    volumes:\n      - broken\n"), 0o644), ShouldBeNil)

			_, err := Load(root, path)
			So(err, ShouldNotBeNil)
		})
	})
}
