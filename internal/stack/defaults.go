package stack

import "fmt"

// DefaultOptions controls the generated development stack
type DefaultOptions struct {
	ProjectName string
	AppService  string
	DBService   string
	AppImage    string
	DBImage     string
	BuildDir    string
	SourceDir   string
	HostPort    uint32
	AppPort     uint32
	DBName      string
	DBUser      string
	DBPassword  string
	DataVolume  string
	StaticVol   string
	StaticDir   string
	Debug       bool
	Healthcheck bool
}

// DefaultStackOptions returns the options of the standard two-service stack
func DefaultStackOptions() DefaultOptions {
	return DefaultOptions{
		AppService: "app",
		DBService:  "db",
		AppImage:   "bookshelf-app:dev",
		DBImage:    "postgres:13-alpine",
		BuildDir:   ".",
		SourceDir:  "./app",
		HostPort:   8000,
		AppPort:    8000,
		DBName:     "devdb",
		DBUser:     "devuser",
		DBPassword: "changeme",
		DataVolume: "dev-db-data",
		StaticVol:  "dev-static-data",
		StaticDir:  "/vol/web",
		Debug:      true,
	}
}

// DefaultProject builds the development stack: the application built from
// the repository and a postgres database it waits for.
func DefaultProject(opts DefaultOptions) *Project {
	debug := "0"
	if opts.Debug {
		debug = "1"
	}

	app := &Service{
		Name:  opts.AppService,
		Build: &Build{Context: opts.BuildDir},
		Image: opts.AppImage,
		Ports: []Port{{
			Published: fmt.Sprintf("%d", opts.HostPort),
			Target:    opts.AppPort,
		}},
		Volumes: []Mount{
			{Type: MountBind, Source: opts.SourceDir, Target: "/app"},
			{Type: MountVolume, Source: opts.StaticVol, Target: opts.StaticDir},
		},
		Command: Command{
			"sh", "-c",
			fmt.Sprintf("bookshelf wait-for-db && bookshelf migrate && bookshelf serve --addr 0.0.0.0:%d", opts.AppPort),
		},
		Environment: Environment{
			"DB_HOST": opts.DBService,
			"DB_NAME": opts.DBName,
			"DB_USER": opts.DBUser,
			"DB_PASS": opts.DBPassword,
			"DEBUG":   debug,
		},
		DependsOn: DependsOn{opts.DBService: {}},
	}

	db := &Service{
		Name:  opts.DBService,
		Image: opts.DBImage,
		Volumes: []Mount{
			{Type: MountVolume, Source: opts.DataVolume, Target: "/var/lib/postgresql/data"},
		},
		Environment: Environment{
			"POSTGRES_DB":       opts.DBName,
			"POSTGRES_USER":     opts.DBUser,
			"POSTGRES_PASSWORD": opts.DBPassword,
		},
	}

	if opts.Healthcheck {
		db.Healthcheck = &Healthcheck{
			Test:     HealthTest{"CMD-SHELL", fmt.Sprintf("pg_isready -U %s -d %s", opts.DBUser, opts.DBName)},
			Interval: "5s",
			Timeout:  "5s",
			Retries:  5,
		}
		app.DependsOn[opts.DBService] = Dependency{Condition: ConditionHealthy}
		app.Healthcheck = &Healthcheck{
			Test:     HealthTest{"CMD", "bookshelf", "healthcheck", "--addr", fmt.Sprintf("http://127.0.0.1:%d/health", opts.AppPort)},
			Interval: "10s",
			Timeout:  "3s",
			Retries:  3,
		}
	}

	return &Project{
		Name: opts.ProjectName,
		Services: map[string]*Service{
			app.Name: app,
			db.Name:  db,
		},
		Volumes: map[string]*Volume{
			opts.DataVolume: {},
			opts.StaticVol:  {},
		},
	}
}
