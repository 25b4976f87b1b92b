package security

import (
	"bytes"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"

	"github.com/beevik/etree"
	"github.com/leifj/signedxml"
)

// AuthSigner produces the AuthSignature of an EBICS request using signedxml
// for inclusive canonicalization
type AuthSigner struct {
	key *KeyMaterial
}

// NewAuthSigner creates a signer for the user's X002 authentication key
func NewAuthSigner(key *KeyMaterial) (*AuthSigner, error) {
	if !key.HasPrivate() {
		return nil, signingErr("new signer", errors.New("authentication private key is required"))
	}
	return &AuthSigner{key: key}, nil
}

// SignRequest computes the digest over all authenticate="true" elements and
// fills the request's AuthSignature. It must be the last change to the request.
func (s *AuthSigner) SignRequest(requestXML []byte) ([]byte, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(requestXML); err != nil {
		return nil, signingErr("parse request", err)
	}

	root := doc.Root()
	if root == nil {
		return nil, signingErr("parse request", errors.New("no root element found"))
	}

	// The ds prefix must be in scope before digesting, since inclusive C14N
	// renders it on every selected element
	if root.SelectAttr("xmlns:ds") == nil {
		root.CreateAttr("xmlns:ds", NSXMLDSig)
	}

	authSig := root.FindElement("./AuthSignature")
	if authSig == nil {
		return nil, signingErr("sign request", errors.New("AuthSignature element not found"))
	}
	authSig.Child = nil

	digest, err := AuthenticatedDigest(doc)
	if err != nil {
		return nil, err
	}

	signedInfo := buildSignedInfo(authSig, digest)

	canonicalSignedInfo, err := canonicalize(signedInfo)
	if err != nil {
		return nil, signingErr("canonicalize SignedInfo", err)
	}

	signature, err := Authenticate([]byte(canonicalSignedInfo), s.key)
	if err != nil {
		return nil, signingErr("sign SignedInfo", err)
	}

	sigValue := authSig.CreateElement("ds:SignatureValue")
	sigValue.SetText(base64.StdEncoding.EncodeToString(signature))

	// Serialize without indentation; whitespace changes the canonical form
	signed, err := doc.WriteToBytes()
	if err != nil {
		return nil, signingErr("serialize request", err)
	}
	if !bytes.HasPrefix(signed, []byte("<?xml")) {
		signed = append([]byte(xml.Header), signed...)
	}
	return signed, nil
}

// AuthenticatedDigest returns SHA-256 over the concatenated canonical forms of
// every authenticate="true" element, in document order
func AuthenticatedDigest(doc *etree.Document) ([]byte, error) {
	elements := doc.FindElements(AuthenticateXPath)
	if len(elements) == 0 {
		return nil, signingErr("select authenticated nodes", errors.New("no element carries authenticate=\"true\""))
	}

	hash := sha256.New()
	for _, elem := range elements {
		canonical, err := canonicalize(elem)
		if err != nil {
			return nil, signingErr("canonicalize "+elem.Tag, err)
		}
		hash.Write([]byte(canonical))
	}
	return hash.Sum(nil), nil
}

// VerifyAuthSignature checks the AuthSignature of a document against the
// counterpart's X002 public key
func VerifyAuthSignature(documentXML []byte, pub *rsa.PublicKey) error {
	if pub == nil {
		return signingErr("verify", errors.New("authentication public key is required"))
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(documentXML); err != nil {
		return signingErr("parse document", err)
	}
	root := doc.Root()
	if root == nil {
		return signingErr("parse document", errors.New("no root element found"))
	}

	authSig := root.FindElement("./AuthSignature")
	if authSig == nil {
		return signingErr("verify", errors.New("AuthSignature element not found"))
	}
	signedInfo := authSig.FindElement("./SignedInfo")
	sigValue := authSig.FindElement("./SignatureValue")
	if signedInfo == nil || sigValue == nil {
		return signingErr("verify", errors.New("incomplete AuthSignature"))
	}

	digestValue := signedInfo.FindElement("./Reference/DigestValue")
	if digestValue == nil {
		return signingErr("verify", errors.New("DigestValue not found"))
	}
	expected, err := base64.StdEncoding.DecodeString(digestValue.Text())
	if err != nil {
		return signingErr("decode DigestValue", err)
	}

	digest, err := AuthenticatedDigest(doc)
	if err != nil {
		return err
	}
	if !Equal(digest, expected) {
		return signingErr("verify", errors.New("digest mismatch"))
	}

	canonicalSignedInfo, err := canonicalize(signedInfo)
	if err != nil {
		return signingErr("canonicalize SignedInfo", err)
	}
	signature, err := base64.StdEncoding.DecodeString(sigValue.Text())
	if err != nil {
		return signingErr("decode SignatureValue", err)
	}
	if err := VerifyAuthentication([]byte(canonicalSignedInfo), signature, pub); err != nil {
		return signingErr("verify", err)
	}
	return nil
}

func buildSignedInfo(authSig *etree.Element, digest []byte) *etree.Element {
	signedInfo := authSig.CreateElement("ds:SignedInfo")

	c14nMethod := signedInfo.CreateElement("ds:CanonicalizationMethod")
	c14nMethod.CreateAttr("Algorithm", AlgorithmC14N)

	sigMethod := signedInfo.CreateElement("ds:SignatureMethod")
	sigMethod.CreateAttr("Algorithm", AlgorithmRSASHA256)

	ref := signedInfo.CreateElement("ds:Reference")
	ref.CreateAttr("URI", "#xpointer("+AuthenticateXPath+")")

	transforms := ref.CreateElement("ds:Transforms")
	transform := transforms.CreateElement("ds:Transform")
	transform.CreateAttr("Algorithm", AlgorithmC14N)

	digestMethod := ref.CreateElement("ds:DigestMethod")
	digestMethod.CreateAttr("Algorithm", AlgorithmSHA256)

	digestValue := ref.CreateElement("ds:DigestValue")
	digestValue.SetText(base64.StdEncoding.EncodeToString(digest))

	return signedInfo
}

// canonicalize renders elem with inclusive C14N 1.0 as it appears in its
// document, carrying the in-scope namespace declarations of its ancestors
func canonicalize(elem *etree.Element) (string, error) {
	standalone := elem.Copy()
	for p := elem.Parent(); p != nil; p = p.Parent() {
		for _, attr := range p.Attr {
			if attr.Space != "xmlns" && !(attr.Space == "" && attr.Key == "xmlns") {
				continue
			}
			if standalone.SelectAttr(attr.FullKey()) == nil {
				standalone.CreateAttr(attr.FullKey(), attr.Value)
			}
		}
	}

	doc := etree.NewDocument()
	doc.SetRoot(standalone)
	raw, err := doc.WriteToString()
	if err != nil {
		return "", err
	}

	c14n, ok := signedxml.CanonicalizationAlgorithms[AlgorithmC14N]
	if !ok {
		return "", fmt.Errorf("canonicalization algorithm %s not available", AlgorithmC14N)
	}
	return c14n.Process(raw, "")
}
