package wz

import "strconv"

// versionHash is the rolling hash of the decimal digits of v.
func versionHash(v int) uint32 {
	var h int32
	for _, c := range strconv.Itoa(v) {
		h = h*32 + int32(c) + 1
	}
	return uint32(h)
}

func checkByte(h uint32) uint16 {
	return uint16(0xFF ^ (h>>24)&0xFF ^ (h>>16)&0xFF ^ (h>>8)&0xFF ^ h&0xFF)
}

// VersionCheckByte returns the encrypted version an archive of version real
// declares in its header.
func VersionCheckByte(real int) uint16 {
	return checkByte(versionHash(real))
}

// VerifyVersion reports whether encrypted is the header tag of version real.
// On a match it returns the version hash used to decrypt entry offsets.
func VerifyVersion(encrypted uint16, real int) (uint32, bool) {
	h := versionHash(real)
	if checkByte(h) != encrypted {
		return 0, false
	}
	return h, true
}
