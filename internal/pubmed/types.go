// Package pubmed provides a client for the NCBI PubMed E-utilities API.
//
// The service issues two kinds of calls: esearch.fcgi, which returns a JSON
// list of PMIDs for a boolean query, and efetch.fcgi, which returns an XML
// document with full article metadata. The XML's optional and
// singular-vs-plural node shapes are modeled explicitly here so parsing
// degrades per field rather than failing per document.
//
// The E-utilities API documentation is available at:
// https://www.ncbi.nlm.nih.gov/books/NBK25499/
package pubmed

import "encoding/xml"

// esearchResponse is the JSON envelope returned by esearch.fcgi with
// retmode=json.
type esearchResponse struct {
	ESearchResult esearchResult `json:"esearchresult"`
}

// esearchResult carries the identifier list and any query errors.
type esearchResult struct {
	Count  string   `json:"count"`
	RetMax string   `json:"retmax"`
	IDList []string `json:"idlist"`
	// ErrorList is present when part of the query failed to resolve.
	ErrorList *esearchErrorList `json:"errorlist,omitempty"`
}

// esearchErrorList contains phrase and field resolution failures. A phrase
// not found is a zero-match condition, not a request failure.
type esearchErrorList struct {
	PhraseNotFound []string `json:"phrasesnotfound,omitempty"`
	FieldNotFound  []string `json:"fieldsnotfound,omitempty"`
}

// PubmedArticleSet is the root of an efetch.fcgi XML response.
type PubmedArticleSet struct {
	XMLName  xml.Name        `xml:"PubmedArticleSet"`
	Articles []PubmedArticle `xml:"PubmedArticle"`
}

// PubmedArticle is a single article record.
type PubmedArticle struct {
	MedlineCitation MedlineCitation `xml:"MedlineCitation"`
}

// MedlineCitation contains the core bibliographic information.
type MedlineCitation struct {
	PMID               PMID                `xml:"PMID"`
	Article            Article             `xml:"Article"`
	MedlineJournalInfo *MedlineJournalInfo `xml:"MedlineJournalInfo,omitempty"`
}

// PMID is the PubMed identifier with optional version attribute.
type PMID struct {
	Version int    `xml:"Version,attr,omitempty"`
	Value   string `xml:",chardata"`
}

// MedlineJournalInfo carries the MEDLINE journal abbreviation (TA).
type MedlineJournalInfo struct {
	MedlineTA string `xml:"MedlineTA,omitempty"`
}

// Article contains the article metadata. Every nested structure is optional.
type Article struct {
	Journal      Journal     `xml:"Journal"`
	ArticleTitle string      `xml:"ArticleTitle"`
	Abstract     *Abstract   `xml:"Abstract,omitempty"`
	AuthorList   *AuthorList `xml:"AuthorList,omitempty"`
}

// Journal contains journal naming and issue information.
type Journal struct {
	Title           string       `xml:"Title,omitempty"`
	ISOAbbreviation string       `xml:"ISOAbbreviation,omitempty"`
	JournalIssue    JournalIssue `xml:"JournalIssue"`
}

// JournalIssue holds the publication date.
type JournalIssue struct {
	PubDate PubDate `xml:"PubDate"`
}

// PubDate is the loosely structured publication date: any component may be
// absent, and some records carry only a MedlineDate range string.
type PubDate struct {
	Year        string `xml:"Year,omitempty"`
	Month       string `xml:"Month,omitempty"`
	Day         string `xml:"Day,omitempty"`
	MedlineDate string `xml:"MedlineDate,omitempty"`
}

// Abstract holds zero or more abstract sections. Structured abstracts have
// one section per label; plain abstracts have a single unlabeled section.
type Abstract struct {
	AbstractTexts []AbstractText `xml:"AbstractText"`
}

// AbstractText is one paragraph of the abstract.
type AbstractText struct {
	Label string `xml:"Label,attr,omitempty"`
	Value string `xml:",chardata"`
}

// AuthorList contains zero or more authors. No authors is valid.
type AuthorList struct {
	Authors []Author `xml:"Author"`
}

// Author is either a person (LastName/Initials) or a collective name.
type Author struct {
	LastName       string `xml:"LastName,omitempty"`
	ForeName       string `xml:"ForeName,omitempty"`
	Initials       string `xml:"Initials,omitempty"`
	CollectiveName string `xml:"CollectiveName,omitempty"`
}
