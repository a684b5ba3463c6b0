package capture

import (
	"bytes"
	"fmt"
	"strings"

	exif "github.com/dsoprea/go-exif/v3"
	exifcommon "github.com/dsoprea/go-exif/v3/common"
	exifundefined "github.com/dsoprea/go-exif/v3/undefined"
	jpegstructure "github.com/dsoprea/go-jpeg-image-structure/v2"
)

// Metadata is written into a capture's EXIF block
type Metadata struct {
	Description string // ImageDescription
	ViewType    string // "view_type:<value>" in UserComment when set
}

// ViewTypeComment formats the UserComment marker
func ViewTypeComment(viewType string) string {
	return "view_type:" + viewType
}

// Embed returns data with an EXIF segment carrying meta. Tags the library
// cannot map are skipped with a warning; only a structural failure returns
// an error.
func Embed(data []byte, meta Metadata, logger interface{ Warn(string, ...any) }) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("exif embedding panicked: %v", r)
		}
	}()

	im, err := exifcommon.NewIfdMappingWithStandard()
	if err != nil {
		return nil, fmt.Errorf("ifd mapping: %w", err)
	}
	ti := exif.NewTagIndex()

	rootIb := exif.NewIfdBuilder(im, ti, exifcommon.IfdStandardIfdIdentity, exifcommon.EncodeDefaultByteOrder)

	if meta.Description != "" {
		if err := rootIb.AddStandardWithName("ImageDescription", asciiOnly(meta.Description)); err != nil {
			logger.Warn("ImageDescription tag unavailable", "error", err.Error())
		}
	}

	if meta.ViewType != "" {
		exifIb, err := exif.GetOrCreateIbFromRootIb(rootIb, "IFD/Exif")
		if err != nil {
			logger.Warn("Exif IFD unavailable", "error", err.Error())
		} else {
			comment := exifundefined.Tag9286UserComment{
				EncodingType:  exifundefined.TagUndefinedType_9286_UserComment_Encoding_ASCII,
				EncodingBytes: []byte(asciiOnly(ViewTypeComment(meta.ViewType))),
			}
			if err := exifIb.AddStandardWithName("UserComment", comment); err != nil {
				logger.Warn("UserComment tag unavailable", "error", err.Error())
			}
		}
	}

	parsed, err := jpegstructure.NewJpegMediaParser().ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("parse jpeg: %w", err)
	}
	sl, ok := parsed.(*jpegstructure.SegmentList)
	if !ok {
		return nil, fmt.Errorf("unexpected jpeg media context %T", parsed)
	}

	if err := sl.SetExif(rootIb); err != nil {
		return nil, fmt.Errorf("set exif: %w", err)
	}

	var buf bytes.Buffer
	if err := sl.Write(&buf); err != nil {
		return nil, fmt.Errorf("write jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// asciiOnly replaces runes EXIF ASCII fields cannot carry
func asciiOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if r > 0x7e || (r < 0x20 && r != '\t') {
			return '?'
		}
		return r
	}, s)
}
