// Package softrender is a headless [video.Platform], rendering into an
// in-memory image with the gg 2D rasterizer.
//
// It stands in for a windowing backend, e.g. for tests, and for capturing
// frames without a display. Each session allocates a [gg.Context] of the
// configured screen size, and [Renderer.Present] paces frames to a fixed
// rate.
package softrender
