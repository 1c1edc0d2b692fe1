package protocol

import "fmt"

const (
	// DisplayInfoLen is the fixed wire size of a DisplayInfo record.
	DisplayInfoLen = 24
	// ScreenInfoLen is the fixed wire size of a ScreenInfo record.
	ScreenInfoLen = 25
	// VideoSettingsBaseLen is the size of VideoSettings with empty codec options and encoder name.
	VideoSettingsBaseLen = 35
)

type Size struct {
	Width  int32 `json:"width"`
	Height int32 `json:"height"`
}

type Rect struct {
	Left   int32 `json:"left"`
	Top    int32 `json:"top"`
	Right  int32 `json:"right"`
	Bottom int32 `json:"bottom"`
}

func (r Rect) Width() int32  { return r.Right - r.Left }
func (r Rect) Height() int32 { return r.Bottom - r.Top }

// DisplayInfo describes one physical or virtual display on the device.
type DisplayInfo struct {
	DisplayID  int32 `json:"display_id"`
	Size       Size  `json:"size"`
	Rotation   int32 `json:"rotation"`
	LayerStack int32 `json:"layer_stack"`
	Flags      int32 `json:"flags"`
}

func decodeDisplayInfo(b []byte) (DisplayInfo, error) {
	if len(b) != DisplayInfoLen {
		return DisplayInfo{}, fmt.Errorf("display info: %d bytes, want %d: %w", len(b), DisplayInfoLen, ErrInvalidLength)
	}
	r := &reader{buf: b}
	var d DisplayInfo
	d.DisplayID, _ = r.int32("display id")
	d.Size.Width, _ = r.int32("width")
	d.Size.Height, _ = r.int32("height")
	d.Rotation, _ = r.int32("rotation")
	d.LayerStack, _ = r.int32("layer stack")
	d.Flags, _ = r.int32("flags")
	return d, nil
}

func (d DisplayInfo) appendTo(w *writer) {
	w.int32(d.DisplayID)
	w.int32(d.Size.Width)
	w.int32(d.Size.Height)
	w.int32(d.Rotation)
	w.int32(d.LayerStack)
	w.int32(d.Flags)
}

// ScreenInfo is the area of the display currently captured into the video stream.
type ScreenInfo struct {
	ContentRect    Rect  `json:"content_rect"`
	VideoSize      Size  `json:"video_size"`
	DeviceRotation uint8 `json:"device_rotation"`
}

// DecodeScreenInfo parses a fixed-size ScreenInfo record.
func DecodeScreenInfo(b []byte) (ScreenInfo, error) {
	if len(b) != ScreenInfoLen {
		return ScreenInfo{}, fmt.Errorf("screen info: %d bytes, want %d: %w", len(b), ScreenInfoLen, ErrInvalidLength)
	}
	r := &reader{buf: b}
	var s ScreenInfo
	s.ContentRect.Left, _ = r.int32("left")
	s.ContentRect.Top, _ = r.int32("top")
	s.ContentRect.Right, _ = r.int32("right")
	s.ContentRect.Bottom, _ = r.int32("bottom")
	s.VideoSize.Width, _ = r.int32("video width")
	s.VideoSize.Height, _ = r.int32("video height")
	s.DeviceRotation, _ = r.uint8("device rotation")
	return s, nil
}

func (s ScreenInfo) MarshalBinary() ([]byte, error) {
	w := &writer{buf: make([]byte, 0, ScreenInfoLen)}
	w.int32(s.ContentRect.Left)
	w.int32(s.ContentRect.Top)
	w.int32(s.ContentRect.Right)
	w.int32(s.ContentRect.Bottom)
	w.int32(s.VideoSize.Width)
	w.int32(s.VideoSize.Height)
	w.uint8(s.DeviceRotation)
	return w.buf, nil
}

// VideoSettings are the encoder parameters the device streams with.
type VideoSettings struct {
	Bitrate                int32  `json:"bitrate"`
	MaxFPS                 int32  `json:"max_fps"`
	IFrameInterval         int8   `json:"i_frame_interval"`
	BoundsWidth            int16  `json:"bounds_width"`
	BoundsHeight           int16  `json:"bounds_height"`
	Crop                   Rect   `json:"crop"`
	SendFrameMeta          bool   `json:"send_frame_meta"`
	LockedVideoOrientation int8   `json:"locked_video_orientation"`
	DisplayID              int32  `json:"display_id"`
	CodecOptions           string `json:"codec_options,omitempty"`
	EncoderName            string `json:"encoder_name,omitempty"`
}

// DecodeVideoSettings parses a variable-length VideoSettings record.
func DecodeVideoSettings(b []byte) (VideoSettings, error) {
	if len(b) < VideoSettingsBaseLen {
		return VideoSettings{}, fmt.Errorf("video settings: %d bytes, want at least %d: %w", len(b), VideoSettingsBaseLen, ErrShortFrame)
	}
	r := &reader{buf: b}
	var v VideoSettings
	v.Bitrate, _ = r.int32("bitrate")
	v.MaxFPS, _ = r.int32("max fps")
	iframe, _ := r.uint8("i-frame interval")
	v.IFrameInterval = int8(iframe)
	v.BoundsWidth, _ = r.int16("bounds width")
	v.BoundsHeight, _ = r.int16("bounds height")
	var crop [4]int16
	for i := range crop {
		crop[i], _ = r.int16("crop")
	}
	v.Crop = Rect{Left: int32(crop[0]), Top: int32(crop[1]), Right: int32(crop[2]), Bottom: int32(crop[3])}
	meta, _ := r.uint8("send frame meta")
	v.SendFrameMeta = meta != 0
	locked, _ := r.uint8("locked orientation")
	v.LockedVideoOrientation = int8(locked)
	v.DisplayID, _ = r.int32("display id")

	codec, err := r.lenPrefixed("codec options")
	if err != nil {
		return VideoSettings{}, fmt.Errorf("video settings: %w", err)
	}
	v.CodecOptions = string(codec)
	encoder, err := r.lenPrefixed("encoder name")
	if err != nil {
		return VideoSettings{}, fmt.Errorf("video settings: %w", err)
	}
	v.EncoderName = string(encoder)
	return v, nil
}

func (v VideoSettings) MarshalBinary() ([]byte, error) {
	w := &writer{buf: make([]byte, 0, VideoSettingsBaseLen+len(v.CodecOptions)+len(v.EncoderName))}
	v.appendTo(w)
	return w.buf, nil
}

func (v VideoSettings) appendTo(w *writer) {
	w.int32(v.Bitrate)
	w.int32(v.MaxFPS)
	w.uint8(uint8(v.IFrameInterval))
	w.int16(v.BoundsWidth)
	w.int16(v.BoundsHeight)
	w.int16(int16(v.Crop.Left))
	w.int16(int16(v.Crop.Top))
	w.int16(int16(v.Crop.Right))
	w.int16(int16(v.Crop.Bottom))
	if v.SendFrameMeta {
		w.uint8(1)
	} else {
		w.uint8(0)
	}
	w.uint8(uint8(v.LockedVideoOrientation))
	w.int32(v.DisplayID)
	w.lenPrefixed([]byte(v.CodecOptions))
	w.lenPrefixed([]byte(v.EncoderName))
}
