package security

// Key versions as they appear in EBICS order data
const (
	VersionA005 = "A005"
	VersionA006 = "A006"
	VersionX002 = "X002"
	VersionE002 = "E002"
)

// Algorithm URIs used in the EBICS AuthSignature
const (
	// Signature algorithms
	AlgorithmRSASHA256 = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"

	// Digest algorithms
	AlgorithmSHA256 = "http://www.w3.org/2001/04/xmlenc#sha256"

	// Canonicalization algorithms
	AlgorithmC14N             = "http://www.w3.org/TR/2001/REC-xml-c14n-20010315"
	AlgorithmC14NWithComments = "http://www.w3.org/TR/2001/REC-xml-c14n-20010315#WithComments"
)

// XML namespaces
const (
	NSXMLDSig = "http://www.w3.org/2000/09/xmldsig#"
)

// AuthenticateXPath selects the nodes covered by the AuthSignature
const AuthenticateXPath = "//*[@authenticate='true']"

// DefaultKeySize is the RSA modulus size used when none is given
const DefaultKeySize = 2048

// NonceSize is the size of a transaction nonce, which is also the AES-128 key
const NonceSize = 16

// IsSignatureVersion reports whether version names an ES key profile
func IsSignatureVersion(version string) bool {
	return version == VersionA005 || version == VersionA006
}
