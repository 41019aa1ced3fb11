package main

import (
	"flag"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"deferred-renderer/core"
	"deferred-renderer/core/window"
	"deferred-renderer/internal/opengl"
	"deferred-renderer/io"
	"deferred-renderer/renderer"
	"deferred-renderer/resource"
)

type options struct {
	scene  string
	model  string
	width  int
	height int
	debug  bool
	cycle  time.Duration
	orbit  float64
}

func main() {
	var opts options
	flag.StringVar(&opts.scene, "scene", "", "JSON scene file; a built-in scene is used when empty")
	flag.StringVar(&opts.model, "gltf", "", "glTF or OBJ model added to the scene")
	flag.IntVar(&opts.width, "width", 1280, "window width")
	flag.IntVar(&opts.height, "height", 720, "window height")
	flag.BoolVar(&opts.debug, "debug", false, "draw light and cascade volumes and log driver messages")
	flag.DurationVar(&opts.cycle, "cycle", 2*time.Minute, "length of one day/night cycle, 0 to disable")
	flag.Float64Var(&opts.orbit, "orbit", 0.15, "camera orbit speed in radians per second")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	core.SetLogger(logger)

	if err := run(logger, opts); err != nil {
		logger.Fatal("demo failed", zap.Error(err))
	}
	logger.Info("exiting")
}

func loadSceneFile(opts options) (*io.SceneFile, string, error) {
	file, dir := io.NewDefaultSceneFile("default"), "."
	if opts.scene != "" {
		f, err := io.LoadScene(opts.scene)
		if err != nil {
			return nil, "", err
		}
		file, dir = f, filepath.Dir(opts.scene)
	}
	if opts.model != "" {
		path, err := filepath.Abs(opts.model)
		if err != nil {
			return nil, "", err
		}
		file.Models = append(file.Models, io.ModelData{Path: path, Scale: 1})
	}
	return file, dir, nil
}

func run(logger *zap.Logger, opts options) error {
	file, dir, err := loadSceneFile(opts)
	if err != nil {
		return err
	}

	windowConfig := window.DefaultConfig()
	windowConfig.Title = "Deferred Renderer - " + file.Name
	windowConfig.Width = opts.width
	windowConfig.Height = opts.height
	windowConfig.DebugContext = opts.debug

	win, err := window.New(windowConfig)
	if err != nil {
		return err
	}
	defer win.Destroy()

	dev, err := opengl.NewDevice(
		opengl.WithDeviceLogger(logger.Named("gl")),
		opengl.WithDebugOutput(opts.debug))
	if err != nil {
		return err
	}
	defer dev.Destroy()

	meshes := opengl.NewMeshBatches()
	defer meshes.Destroy()

	caches := resource.NewCaches()
	dev.ReleaseTextures(caches.Textures)
	dev.ReleaseTechniques(caches.Techniques)
	meshes.ReleaseMeshes(caches.Meshes)
	if err := opengl.RegisterBuiltins(caches); err != nil {
		return fmt.Errorf("built-in resources: %w", err)
	}

	sc, err := file.Build(caches, io.BuildOptions{
		Technique: opengl.GeometryTechniqueID,
		BaseDir:   dir,
	})
	if err != nil {
		return fmt.Errorf("scene %q: %w", file.Name, err)
	}
	settings := sc.Settings
	settings.EnableDebugRendering = settings.EnableDebugRendering || opts.debug

	lines := opengl.NewLineDrawer(dev)
	defer lines.Destroy()

	size := win.FramebufferSize()
	r, err := renderer.New(dev, meshes, caches, size,
		renderer.WithSettings(settings),
		renderer.WithLogger(logger.Named("renderer")),
		renderer.WithDebugDrawer(lines))
	if err != nil {
		return err
	}
	defer r.Destroy()

	sky, _ := caches.Effects.Acquire(settings.ImageBasedLightEffect)
	dayNight := NewDayNight(sc.World, sky, float32(opts.cycle.Seconds()))
	dayNight.Apply()

	var status StatusLine
	last := win.Time()
	for !win.ShouldClose() && !win.IsKeyPressed(window.KeyEscape) {
		win.PollEvents()
		now := win.Time()
		dt := float32(now - last)
		last = now

		if s := win.FramebufferSize(); s != size {
			size = s
			if size.Empty() {
				continue
			}
			if err := r.Resize(size); err != nil {
				return err
			}
		}
		if size.Empty() {
			continue
		}

		sc.Camera.Orbit(float32(opts.orbit)*dt, 0)
		dayNight.Update(dt)
		dayNight.Apply()

		frustum, err := sc.Camera.Frustum(size.Aspect())
		if err != nil {
			return err
		}
		if err := r.Render(renderer.Viewport{Frustum: frustum}, sc.World); err != nil {
			return fmt.Errorf("render: %w", err)
		}
		win.SwapBuffers()

		if status.Tick(dt) {
			status.Clear()
			status.AddField("%s", file.Name)
			status.AddField("FPS: %d", status.FPS)
			status.AddField("%dx%d", size.Width, size.Height)
			status.AddField("%s", dayNight.TimeOfDayStr())
			win.SetTitle(status.String())
			logger.Debug("frame stats", zap.Int("fps", status.FPS))
		}
	}
	return nil
}
