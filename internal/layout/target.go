package layout

// Target describes the ABI target and its pointer and discriminant
// properties. Enum discriminants are 64-bit on every supported target.
type Target struct {
	Triple    string // e.g. "x86_64-linux-gnu"
	PtrSize   int    // bytes
	PtrAlign  int    // bytes
	DiscSize  int    // bytes, tagged-union discriminant
	DiscAlign int    // bytes
}

func X86_64LinuxGNU() Target {
	return Target{
		Triple:    "x86_64-linux-gnu",
		PtrSize:   8,
		PtrAlign:  8,
		DiscSize:  8,
		DiscAlign: 8,
	}
}

func AArch64LinuxGNU() Target {
	return Target{
		Triple:    "aarch64-linux-gnu",
		PtrSize:   8,
		PtrAlign:  8,
		DiscSize:  8,
		DiscAlign: 8,
	}
}
