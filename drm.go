package rnb

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"strings"
)

// encryptionFilePath is the standard path for the encryption descriptor.
const encryptionFilePath = "META-INF/encryption.xml"

// sinfFilePath is the path that indicates Apple FairPlay DRM.
const sinfFilePath = "META-INF/sinf.xml"

// Font obfuscation algorithm URIs – these do NOT constitute DRM.
var fontObfuscationAlgorithms = map[string]bool{
	"http://www.idpf.org/2008/embedding": true, // IDPF font obfuscation
	"http://ns.adobe.com/pdf/enc#RC":     true, // Adobe font obfuscation
}

// Known DRM namespace prefixes found in KeyInfo child elements or algorithm URIs,
// mapped to the scheme name used in error messages.
var drmSignatures = []struct{ prefix, name string }{
	{"http://ns.adobe.com/adept", "Adobe ADEPT"},
	{"http://readium.org/2014/01/lcp", "Readium LCP"},
}

// XML structures for parsing encryption.xml.

type xmlEncryption struct {
	XMLName       xml.Name           `xml:"encryption"`
	EncryptedData []xmlEncryptedData `xml:"EncryptedData"`
}

type xmlEncryptedData struct {
	EncryptionMethod xmlEncryptionMethod `xml:"EncryptionMethod"`
	KeyInfo          xmlKeyInfo          `xml:"KeyInfo"`
}

type xmlEncryptionMethod struct {
	Algorithm string `xml:"Algorithm,attr"`
}

type xmlKeyInfo struct {
	InnerXML string `xml:",innerxml"`
}

// checkDRM parses META-INF/encryption.xml (if present) and determines whether
// the ePub is DRM-protected or merely uses font obfuscation. Encrypted text
// or images would be copied into the container as ciphertext, so any real
// encryption refuses the conversion.
func checkDRM(zr *zip.Reader) (fontObfuscation bool, err error) {
	// Check for Apple FairPlay indicator first.
	if findFileInsensitive(zr, sinfFilePath) != nil {
		return false, fmt.Errorf("Apple FairPlay: %w", ErrDRMProtected)
	}

	f := findFileInsensitive(zr, encryptionFilePath)
	if f == nil {
		return false, nil
	}

	data, err := readZipFile(f)
	if err != nil {
		return false, err
	}
	data = stripBOM(data)

	var enc xmlEncryption
	if err := xml.Unmarshal(data, &enc); err != nil {
		// If we can't parse it, treat conservatively as potential DRM.
		return false, ErrDRMProtected
	}

	if len(enc.EncryptedData) == 0 {
		return false, nil
	}

	for _, ed := range enc.EncryptedData {
		algo := ed.EncryptionMethod.Algorithm

		if fontObfuscationAlgorithms[algo] {
			fontObfuscation = true
			continue
		}

		if name := drmName(algo + " " + ed.KeyInfo.InnerXML); name != "" {
			return false, fmt.Errorf("%s: %w", name, ErrDRMProtected)
		}

		// Any EncryptedData that is NOT font obfuscation is treated as DRM.
		return false, ErrDRMProtected
	}

	return fontObfuscation, nil
}

// drmName returns the name of the first DRM scheme whose signature occurs in s.
func drmName(s string) string {
	for _, sig := range drmSignatures {
		if strings.Contains(s, sig.prefix) {
			return sig.name
		}
	}
	return ""
}
