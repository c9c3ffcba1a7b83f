package deb

// ControlField represents a standard field in a Debian control file.
type ControlField string

const (
	FieldPackage       ControlField = "Package"
	FieldVersion       ControlField = "Version"
	FieldArchitecture  ControlField = "Architecture"
	FieldMaintainer    ControlField = "Maintainer"
	FieldInstalledSize ControlField = "Installed-Size"
	FieldDepends       ControlField = "Depends"
	FieldPreDepends    ControlField = "Pre-Depends"
	FieldRecommends    ControlField = "Recommends"
	FieldSuggests      ControlField = "Suggests"
	FieldEnhances      ControlField = "Enhances"
	FieldConflicts     ControlField = "Conflicts"
	FieldBreaks        ControlField = "Breaks"
	FieldReplaces      ControlField = "Replaces"
	FieldProvides      ControlField = "Provides"
	FieldSection       ControlField = "Section"
	FieldPriority      ControlField = "Priority"
	FieldHomepage      ControlField = "Homepage"
	FieldDescription   ControlField = "Description"
)

// controlFieldOrder is the canonical field order the Control Generator
// writes in, per spec §4.5.
var controlFieldOrder = []ControlField{
	FieldPackage, FieldVersion, FieldArchitecture, FieldMaintainer, FieldInstalledSize,
	FieldDepends, FieldPreDepends, FieldRecommends, FieldSuggests, FieldEnhances,
	FieldConflicts, FieldBreaks, FieldReplaces, FieldProvides,
	FieldSection, FieldPriority, FieldHomepage, FieldDescription,
}

// ControlFile represents a standard file found in the control.tar.gz archive.
type ControlFile string

const (
	FileControl   ControlFile = "control"
	FileMd5sums   ControlFile = "md5sums"
	FileConffiles ControlFile = "conffiles"
	FileTriggers  ControlFile = "triggers"
	FilePreinst   ControlFile = "preinst"
	FilePostinst  ControlFile = "postinst"
	FilePrerm     ControlFile = "prerm"
	FilePostrm    ControlFile = "postrm"
	FileConfig    ControlFile = "config"
)

// PackageFile represents a standard member of the outer .deb ar archive.
type PackageFile string

const (
	PkgDebianBinary PackageFile = "debian-binary"
	PkgControlTar   PackageFile = "control.tar.gz"
)
