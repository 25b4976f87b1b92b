// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package order describes EBICS order types.

Every order type has a fixed direction, an order attribute and a policy that
decides which order parameters a request must carry:

	desc, err := order.Lookup("FDL")
	params := order.Params{FileFormat: "camt.053.001.02", CountryCode: "FR"}
	if err := desc.CheckParams(params); err != nil {
	    return err
	}

The default registry knows the key management orders (INI, HIA, HPB, SPR), the
bank parameter downloads (HPD, HKD, HTD, HAA), the common statement and
protocol downloads (STA, VMK, C52, C53, C54, PTK, HAC) and the payment uploads
(CCT, CDD, CDB, XE2, AXZ) plus the generic file transfer orders FUL and FDL.
Banks frequently define their own codes, which can be added with Register.
*/
package order
