package hue

import (
	"encoding/xml"
	"fmt"
)

// Fixed description document values of a first-generation bridge.
const (
	deviceTypeBasic = "urn:schemas-upnp-org:device:Basic:1"
	manufacturer    = "Royal Philips Electronics"
	manufacturerURL = "http://www.philips.com"
	modelName       = "Philips hue bridge 2012"
	modelNumber     = "929000226503"
	modelURL        = "http://www.meethue.com"
)

type description struct {
	XMLName     xml.Name          `xml:"urn:schemas-upnp-org:device-1-0 root"`
	SpecVersion specVersion       `xml:"specVersion"`
	URLBase     string            `xml:"URLBase"`
	Device      descriptionDevice `xml:"device"`
}

type specVersion struct {
	Major int `xml:"major"`
	Minor int `xml:"minor"`
}

type descriptionDevice struct {
	DeviceType       string `xml:"deviceType"`
	FriendlyName     string `xml:"friendlyName"`
	Manufacturer     string `xml:"manufacturer"`
	ManufacturerURL  string `xml:"manufacturerURL"`
	ModelDescription string `xml:"modelDescription"`
	ModelName        string `xml:"modelName"`
	ModelNumber      string `xml:"modelNumber"`
	ModelURL         string `xml:"modelURL"`
	SerialNumber     string `xml:"serialNumber"`
	UDN              string `xml:"UDN"`
	PresentationURL  string `xml:"presentationURL"`
}

// Description renders the UPnP root device document for the bridge.
func (i Identity) Description() ([]byte, error) {
	doc := description{
		SpecVersion: specVersion{Major: 1, Minor: 0},
		URLBase:     i.BaseURL(),
		Device: descriptionDevice{
			DeviceType:       deviceTypeBasic,
			FriendlyName:     fmt.Sprintf("Philips hue (%s)", i.Host()),
			Manufacturer:     manufacturer,
			ManufacturerURL:  manufacturerURL,
			ModelDescription: "Philips hue Personal Wireless Lighting",
			ModelName:        modelName,
			ModelNumber:      modelNumber,
			ModelURL:         modelURL,
			SerialNumber:     i.BridgeID(),
			UDN:              i.UDN(),
			PresentationURL:  "index.html",
		},
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding description: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}
