package vna

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/gotmc/cryolab"
	"github.com/gotmc/cryolab/lib/block"
	"github.com/gotmc/query"
	"go.uber.org/multierr"
)

// Capture reads the S-parameters between ports (all ports of the model when
// none are given) in one SNP transfer. The analyzer's data format, byte order
// and SNP export format are restored before returning, whatever the outcome.
func (c *Channel) Capture(ports ...int) (nw *Network, err error) {
	p := c.pna
	if len(ports) == 0 {
		for i := 1; i <= p.model.NPorts; i++ {
			ports = append(ports, i)
		}
	}
	names := make([]string, len(ports))
	for i, port := range ports {
		if port < 1 || port > p.model.NPorts {
			return nil, fmt.Errorf("port %d not on %d-port %s", port, p.model.NPorts, p.model.Name)
		}
		names[i] = strconv.Itoa(port)
	}

	origFormat, err := query.String(p.inst, "FORM:DATA?")
	if err != nil {
		return nil, err
	}
	origOrder, err := query.String(p.inst, "FORM:BORD?")
	if err != nil {
		return nil, err
	}
	if err := p.inst.Command("FORM:DATA REAL,64"); err != nil {
		return nil, err
	}
	defer multierr.AppendFunc(&err, func() error {
		return p.inst.Command("FORM:DATA " + strings.TrimSpace(origFormat))
	})
	if err := p.inst.Command("FORM:BORD NORM"); err != nil {
		return nil, err
	}
	defer multierr.AppendFunc(&err, func() error {
		return p.inst.Command("FORM:BORD " + strings.TrimSpace(origOrder))
	})

	if err := p.SetActiveChannel(c); err != nil {
		return nil, err
	}
	origSNP, err := query.String(p.inst, "MMEM:STOR:TRAC:FORM:SNP?")
	if err != nil {
		return nil, err
	}
	if err := p.inst.Command("MMEM:STOR:TRAC:FORM:SNP RI"); err != nil {
		return nil, err
	}
	defer multierr.AppendFunc(&err, func() error {
		return p.inst.Command("MMEM:STOR:TRAC:FORM:SNP " + strings.TrimSpace(origSNP))
	})

	payload, err := p.inst.QueryBlock(fmt.Sprintf("CALC%d:DATA:SNP:PORTS? '%s'", c.num, strings.Join(names, ",")))
	if err != nil {
		return nil, fmt.Errorf("reading snp data: %w", err)
	}
	if _, err := query.String(p.inst, "*OPC?"); err != nil {
		return nil, err
	}
	raw, err := block.Float64s(payload, binary.BigEndian)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", cryolab.ErrMalformedData, err)
	}
	p.log.Debug().Int("channel", c.num).Ints("ports", ports).Int("values", len(raw)).Msg("captured snp data")
	return Reshape(raw, ports)
}
