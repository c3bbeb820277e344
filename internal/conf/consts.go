// conf/consts.go hard coded constants
package conf

const (
	FileSampleRate     = 22050 // sample rate decoded audio files are resampled to
	RealtimeSampleRate = 48000 // sample rate of raw PCM frames from capture devices
	BitDepth           = 16    // bit depth of raw PCM frames
	NumChannels        = 1     // channel count the feature pipeline operates on

	NumMels   = 64   // mel bands in the model input spectrogram
	HopLength = 512  // STFT hop length in samples
	NumFrames = 105  // fixed time axis length of the model input
	FFTSize   = 2048 // STFT window size in samples

	MaxUploadBytes = 10 * 1024 * 1024 // request body cap for audio uploads
)
