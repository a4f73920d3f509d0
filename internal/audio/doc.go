// Package audio implements the playback element over oto, decoding WAV
// content into the element's fixed PCM format. A mock element is included
// for headless operation and tests.
package audio
