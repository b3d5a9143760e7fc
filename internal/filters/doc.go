// Package filters loads named style filters and applies them to images.
//
// A Registry is built once at startup from an explicit list of descriptors,
// either declared in config or produced by Discover from a style directory.
// Reference images are decoded, down-sampled and reduced to an immutable
// Profile during construction, so the Registry needs no locking afterwards.
//
// Apply is a pure function of (descriptor, input bytes): it decodes the
// input, runs the transform family selected by the descriptor's Kind,
// blends with the original by Strength and encodes PNG. Output dimensions
// always equal input dimensions.
package filters
