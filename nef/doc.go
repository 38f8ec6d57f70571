// Package nef reads Nikon NEF raw files.
//
// A NEF is a TIFF container: the root IFD holds a small preview, its
// SubIFDs hold the full-resolution sensor data and further previews, and
// the EXIF IFD carries a Nikon MakerNote whose model-specific blocks are
// encrypted with a key derived from the camera serial number and shutter
// count.
//
// Open parses the container, lists the images and unlocks the MakerNote.
// Pixel data is decoded on demand by the first registered ImageReader
// that accepts an image; camera plugins registered with RegisterCamera
// interpret model-specific MakerNote data.
//
//	f, err := nef.Open("DSC_0001.NEF")
//	if err != nil {
//		return err
//	}
//	defer f.Close()
//	for i := 0; i < f.ImageCount(); i++ {
//		img, _ := f.Image(i)
//		a := img.Attributes()
//		fmt.Println(a.Width, a.Height, a.Type)
//	}
//
// Set NEFKO_DEBUG to trace open and decode steps to the standard logger.
package nef
